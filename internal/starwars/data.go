package starwars

import (
	"context"
	"sort"
	"strings"
	"sync"

	schema "github.com/hanpama/graphexec/internal/schema"
)

type Episode int

const (
	NewHope Episode = 4
	Empire  Episode = 5
	Jedi    Episode = 6
)

func (Episode) EnumValues() []*schema.EnumValue {
	return []*schema.EnumValue{
		{Name: "NEWHOPE", Value: NewHope, Description: "Released in 1977."},
		{Name: "EMPIRE", Value: Empire, Description: "Released in 1980."},
		{Name: "JEDI", Value: Jedi, Description: "Released in 1983."},
	}
}

func (Episode) Description() string { return "One of the films in the Star Wars Trilogy" }

type Human struct {
	ID         string
	Name       string
	FriendIDs  []string
	AppearsIn  []Episode
	HomePlanet *string
	Height     float64
}

type Droid struct {
	ID              string
	Name            string
	FriendIDs       []string
	AppearsIn       []Episode
	PrimaryFunction string
}

type Starship struct {
	ID     string
	Name   string
	Length float64
}

type Review struct {
	Episode    Episode
	Stars      int
	Commentary *string
}

func strPtr(s string) *string { return &s }

// Store holds the demo data. Reviews are the only mutable part.
type Store struct {
	humans    map[string]*Human
	droids    map[string]*Droid
	starships map[string]*Starship

	mu          sync.Mutex
	reviews     []*Review
	subscribers map[chan *Review]struct{}
}

// NewStore returns a store seeded with the original trilogy cast.
func NewStore() *Store {
	all := []Episode{NewHope, Empire, Jedi}
	s := &Store{
		humans: map[string]*Human{
			"1000": {ID: "1000", Name: "Luke Skywalker", FriendIDs: []string{"1002", "1003", "2000", "2001"}, AppearsIn: all, HomePlanet: strPtr("Tatooine"), Height: 1.72},
			"1001": {ID: "1001", Name: "Darth Vader", FriendIDs: []string{"1004"}, AppearsIn: all, HomePlanet: strPtr("Tatooine"), Height: 2.02},
			"1002": {ID: "1002", Name: "Han Solo", FriendIDs: []string{"1000", "1003", "2001"}, AppearsIn: all, Height: 1.8},
			"1003": {ID: "1003", Name: "Leia Organa", FriendIDs: []string{"1000", "1002", "2000", "2001"}, AppearsIn: all, HomePlanet: strPtr("Alderaan"), Height: 1.5},
			"1004": {ID: "1004", Name: "Wilhuff Tarkin", FriendIDs: []string{"1001"}, AppearsIn: []Episode{NewHope}, Height: 1.8},
		},
		droids: map[string]*Droid{
			"2000": {ID: "2000", Name: "C-3PO", FriendIDs: []string{"1000", "1002", "1003", "2001"}, AppearsIn: all, PrimaryFunction: "Protocol"},
			"2001": {ID: "2001", Name: "R2-D2", FriendIDs: []string{"1000", "1002", "1003"}, AppearsIn: all, PrimaryFunction: "Astromech"},
		},
		starships: map[string]*Starship{
			"3000": {ID: "3000", Name: "Millennium Falcon", Length: 34.37},
			"3001": {ID: "3001", Name: "X-Wing", Length: 12.5},
			"3002": {ID: "3002", Name: "TIE Advanced x1", Length: 9.2},
			"3003": {ID: "3003", Name: "Imperial shuttle", Length: 20},
		},
		subscribers: make(map[chan *Review]struct{}),
	}
	return s
}

// Character returns the human or droid with id, or nil.
func (s *Store) Character(id string) any {
	if h, ok := s.humans[id]; ok {
		return h
	}
	if d, ok := s.droids[id]; ok {
		return d
	}
	return nil
}

// Hero is Luke for The Empire Strikes Back and R2-D2 otherwise.
func (s *Store) Hero(episode *Episode) any {
	if episode != nil && *episode == Empire {
		return s.humans["1000"]
	}
	return s.droids["2001"]
}

// Search matches names containing text, case-insensitively, ordered by id.
func (s *Store) Search(text string) []any {
	text = strings.ToLower(text)
	match := func(name string) bool { return strings.Contains(strings.ToLower(name), text) }
	var ids []string
	byID := map[string]any{}
	for id, h := range s.humans {
		if match(h.Name) {
			ids, byID[id] = append(ids, id), h
		}
	}
	for id, d := range s.droids {
		if match(d.Name) {
			ids, byID[id] = append(ids, id), d
		}
	}
	for id, st := range s.starships {
		if match(st.Name) {
			ids, byID[id] = append(ids, id), st
		}
	}
	sort.Strings(ids)
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = byID[id]
	}
	return out
}

func (s *Store) Reviews(episode Episode) []*Review {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*Review{}
	for _, r := range s.reviews {
		if r.Episode == episode {
			out = append(out, r)
		}
	}
	return out
}

// AddReview stores r and delivers it to current subscribers. Slow
// subscribers miss reviews instead of blocking the writer.
func (s *Store) AddReview(r *Review) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reviews = append(s.reviews, r)
	for ch := range s.subscribers {
		select {
		case ch <- r:
		default:
		}
	}
}

// SubscribeReviews streams new reviews for episode, or for every episode
// when episode is nil, until ctx is done.
func (s *Store) SubscribeReviews(ctx context.Context, episode *Episode) <-chan any {
	in := make(chan *Review, 16)
	s.mu.Lock()
	s.subscribers[in] = struct{}{}
	s.mu.Unlock()

	out := make(chan any)
	go func() {
		defer close(out)
		defer func() {
			s.mu.Lock()
			delete(s.subscribers, in)
			s.mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case r := <-in:
				if episode != nil && r.Episode != *episode {
					continue
				}
				select {
				case out <- r:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
