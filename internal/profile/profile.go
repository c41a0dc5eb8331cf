// Package profile supplies participant identities and their initial presence.
package profile

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pixil98/go-errors"
	"github.com/pixil98/go-office/internal/office"
	"github.com/pixil98/go-office/internal/storage"
)

const maxDisplayName = 40

// Profile holds the durable display attributes of a participant.
type Profile struct {
	DisplayName string        `json:"display_name"`
	Emoji       string        `json:"emoji,omitempty"`
	AvatarURL   string        `json:"avatar_url,omitempty"`
	Status      office.Status `json:"status,omitempty"`
	Role        string        `json:"role,omitempty"`
	Team        string        `json:"team,omitempty"`
	Activity    string        `json:"activity,omitempty"`
}

func (p *Profile) Validate() error {
	el := errors.NewErrorList()

	if strings.TrimSpace(p.DisplayName) == "" {
		el.Add(fmt.Errorf("display_name is required"))
	}
	if len([]rune(p.DisplayName)) > maxDisplayName {
		el.Add(fmt.Errorf("display_name must be at most %d characters", maxDisplayName))
	}
	if p.Status != "" && !p.Status.Valid() {
		el.Add(fmt.Errorf("unknown status %q", p.Status))
	}

	return el.Err()
}

// Update changes which attributes of a stored profile. Nil fields are left alone.
type Update struct {
	Status    *office.Status
	Emoji     *string
	AvatarURL *string
	Activity  *string
}

// Store looks up and persists profiles.
type Store struct {
	st storage.Storer[*Profile]

	// mu serializes read-modify-write cycles.
	mu sync.Mutex
}

func NewStore(st storage.Storer[*Profile]) *Store {
	return &Store{st: st}
}

// Open loads the profiles kept under dir.
func Open(dir string) (*Store, error) {
	fs, err := storage.NewFileStore[*Profile](dir)
	if err != nil {
		return nil, fmt.Errorf("opening profile store: %w", err)
	}
	return NewStore(fs), nil
}

func (s *Store) Get(id string) (*Profile, bool) {
	p, ok := s.st.Get(id)
	if !ok || p == nil {
		return nil, false
	}
	cp := *p
	return &cp, true
}

// Ensure returns the profile for id, creating one named name when absent.
func (s *Store) Ensure(id string, name string) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.Get(id); ok {
		return p, nil
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = office.DefaultDisplayName
	}
	p := &Profile{
		DisplayName: name,
		Status:      office.StatusAvailable,
	}
	if err := s.st.Save(id, p); err != nil {
		return nil, fmt.Errorf("creating profile %s: %w", id, err)
	}

	cp := *p
	return &cp, nil
}

// Apply merges u into the stored profile for id.
func (s *Store) Apply(id string, u Update) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.Get(id)
	if !ok {
		return nil, fmt.Errorf("profile %s not found", id)
	}

	if u.Status != nil {
		p.Status = *u.Status
	}
	if u.Emoji != nil {
		p.Emoji = *u.Emoji
	}
	if u.AvatarURL != nil {
		p.AvatarURL = *u.AvatarURL
	}
	if u.Activity != nil {
		p.Activity = *u.Activity
	}

	if err := s.st.Save(id, p); err != nil {
		return nil, fmt.Errorf("saving profile %s: %w", id, err)
	}
	return p, nil
}

// Snapshot builds the presence a participant enters a room with: stored
// attributes over defaults, placed at spawn.
func Snapshot(id string, p *Profile, spawn office.Point) office.Snapshot {
	snap := office.Snapshot{
		X:         spawn.X,
		Y:         spawn.Y,
		AvatarIdx: office.PaletteIndex(id),
	}
	if p != nil {
		snap.Status = p.Status
		snap.DisplayName = p.DisplayName
		snap.Emoji = p.Emoji
		snap.AvatarURL = p.AvatarURL
		snap.Role = p.Role
		snap.Team = p.Team
		snap.Activity = p.Activity
	}
	return snap.WithDefaults()
}
