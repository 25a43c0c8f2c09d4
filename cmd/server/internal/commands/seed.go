package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/orgdir/internal/models"
	"github.com/wolfeidau/orgdir/internal/store"
	"gopkg.in/yaml.v3"
)

// SeedCmd loads directory fixtures into the configured store.
type SeedCmd struct {
	File  string     `arg:"" help:"YAML seed file" type:"existingfile"`
	Store StoreFlags `embed:""`
}

// Seed is the YAML seed file layout. Organizations refer to users by name.
type Seed struct {
	Users         []SeedUser         `yaml:"users"`
	Organizations []SeedOrganization `yaml:"organizations"`
}

type SeedUser struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	Email      string `yaml:"email"`
	SystemRole string `yaml:"system_role"`
}

type SeedOrganization struct {
	ID      string       `yaml:"id"`
	Name    string       `yaml:"name"`
	Owner   string       `yaml:"owner"`
	Members []SeedMember `yaml:"members"`
}

type SeedMember struct {
	User string `yaml:"user"`
	Role string `yaml:"role"`
}

func (c *SeedCmd) Run(ctx context.Context, globals *Globals) error {
	log := setupLogging(globals)

	f, err := os.Open(c.File)
	if err != nil {
		return fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()

	seed, err := loadSeed(f)
	if err != nil {
		return err
	}

	st, err := c.Store.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore(st)

	users, err := seed.Apply(ctx, st, time.Now())
	if err != nil {
		return err
	}

	for name, id := range users {
		log.Info().Str("name", name).Str("user_id", id.String()).Msg("Seeded user")
	}
	return nil
}

func loadSeed(r io.Reader) (*Seed, error) {
	var seed Seed

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil {
		if errors.Is(err, io.EOF) {
			return &seed, nil
		}
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	return &seed, nil
}

// Apply creates the seed's users, organizations and memberships and returns
// the user IDs by name.
func (s *Seed) Apply(ctx context.Context, st store.Store, now time.Time) (map[string]uuid.UUID, error) {
	now = now.UTC().Truncate(time.Millisecond)
	users := make(map[string]uuid.UUID, len(s.Users))

	for _, su := range s.Users {
		if su.Name == "" {
			return nil, errors.New("seed user without a name")
		}
		if _, ok := users[su.Name]; ok {
			return nil, fmt.Errorf("duplicate seed user %q", su.Name)
		}

		id, err := seedID(su.ID)
		if err != nil {
			return nil, fmt.Errorf("user %q: %w", su.Name, err)
		}

		role := models.SystemRoleUser
		if su.SystemRole != "" {
			if role, err = models.ParseSystemRole(su.SystemRole); err != nil {
				return nil, fmt.Errorf("user %q: %w", su.Name, err)
			}
		}

		if err := st.CreateUser(ctx, &models.User{
			UserID:     id,
			Name:       su.Name,
			Email:      su.Email,
			SystemRole: role,
			CreatedAt:  now,
			UpdatedAt:  now,
		}); err != nil {
			return nil, fmt.Errorf("failed to create user %q: %w", su.Name, err)
		}
		users[su.Name] = id
	}

	for _, so := range s.Organizations {
		ownerID, ok := users[so.Owner]
		if !ok {
			return nil, fmt.Errorf("organization %q: unknown owner %q", so.Name, so.Owner)
		}

		orgID, err := seedID(so.ID)
		if err != nil {
			return nil, fmt.Errorf("organization %q: %w", so.Name, err)
		}

		if err := st.CreateOrganization(ctx, &models.Organization{
			OrgID:       orgID,
			Name:        so.Name,
			OwnerUserID: ownerID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}); err != nil {
			return nil, fmt.Errorf("failed to create organization %q: %w", so.Name, err)
		}

		for _, sm := range so.Members {
			userID, ok := users[sm.User]
			if !ok {
				return nil, fmt.Errorf("organization %q: unknown member %q", so.Name, sm.User)
			}

			role, err := models.ParseMembershipRole(sm.Role)
			if err != nil {
				return nil, fmt.Errorf("organization %q member %q: %w", so.Name, sm.User, err)
			}

			if err := st.PutMembership(ctx, &models.Membership{
				OrgID:     orgID,
				UserID:    userID,
				Role:      role,
				CreatedAt: now,
				UpdatedAt: now,
			}); err != nil {
				return nil, fmt.Errorf("failed to add %q to organization %q: %w", sm.User, so.Name, err)
			}
		}
	}

	return users, nil
}

func seedID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.NewV7()
	}
	return uuid.Parse(s)
}
