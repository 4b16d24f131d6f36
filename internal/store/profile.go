package store

import (
	"database/sql"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/squatcoach/internal/exercise"
)

var (
	// ErrNotFound is returned when a requested resource does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique field is already taken.
	ErrDuplicate = errors.New("already exists")
)

// Profile is a named counter configuration.
type Profile struct {
	ID          string
	Name        string
	Side        string
	DownAngle   float64
	UpAngle     float64
	MinMovement float64
	Strategy    string
	TargetReps  int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CounterConfig converts the profile into a counter configuration.
func (p *Profile) CounterConfig() exercise.Config {
	return exercise.Config{
		Side:        p.Side,
		DownAngle:   p.DownAngle,
		UpAngle:     p.UpAngle,
		MinMovement: p.MinMovement,
		Strategy:    p.Strategy,
		Movement:    exercise.Squat,
	}
}

// Validate checks the profile by building a counter configuration from it.
func (p *Profile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("profile name is required")
	}
	if p.TargetReps < 0 {
		return errors.New("target reps must not be negative")
	}
	_, err := exercise.New(p.CounterConfig())
	return err
}

// ProfileRepository provides CRUD operations for profiles.
type ProfileRepository struct {
	db *sql.DB
}

// Profiles returns the profile repository for this store.
func (s *Store) Profiles() *ProfileRepository {
	return &ProfileRepository{db: s.db}
}

const profileColumns = `id, name, side, down_angle, up_angle, min_movement, strategy, target_reps, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(row scanner) (*Profile, error) {
	p := &Profile{}
	err := row.Scan(&p.ID, &p.Name, &p.Side, &p.DownAngle, &p.UpAngle, &p.MinMovement,
		&p.Strategy, &p.TargetReps, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// translate maps driver errors onto repository errors.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case strings.Contains(err.Error(), "UNIQUE constraint failed"):
		return ErrDuplicate
	}
	return err
}

// Create inserts a new profile into the database.
func (r *ProfileRepository) Create(p *Profile) error {
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := r.db.Exec(
		`INSERT INTO profiles (`+profileColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Side, p.DownAngle, p.UpAngle, p.MinMovement,
		p.Strategy, p.TargetReps, p.CreatedAt, p.UpdatedAt,
	)
	return translate(err)
}

// GetByID retrieves a profile by its ID.
func (r *ProfileRepository) GetByID(id string) (*Profile, error) {
	p, err := scanProfile(r.db.QueryRow(
		`SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id,
	))
	if err != nil {
		return nil, translate(err)
	}
	return p, nil
}

// GetByName retrieves a profile by its name.
func (r *ProfileRepository) GetByName(name string) (*Profile, error) {
	p, err := scanProfile(r.db.QueryRow(
		`SELECT `+profileColumns+` FROM profiles WHERE name = ?`, name,
	))
	if err != nil {
		return nil, translate(err)
	}
	return p, nil
}

// List retrieves all profiles ordered by name.
func (r *ProfileRepository) List() ([]*Profile, error) {
	rows, err := r.db.Query(`SELECT ` + profileColumns + ` FROM profiles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return profiles, nil
}

// Update updates an existing profile in the database.
func (r *ProfileRepository) Update(p *Profile) error {
	p.UpdatedAt = time.Now()

	result, err := r.db.Exec(
		`UPDATE profiles SET name = ?, side = ?, down_angle = ?, up_angle = ?,
		 min_movement = ?, strategy = ?, target_reps = ?, updated_at = ?
		 WHERE id = ?`,
		p.Name, p.Side, p.DownAngle, p.UpAngle, p.MinMovement,
		p.Strategy, p.TargetReps, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return translate(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// Delete removes a profile from the database by its ID.
func (r *ProfileRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM profiles WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// SeedPresets creates one profile per counter preset when the table is
// empty. It returns the number of profiles created.
func (r *ProfileRepository) SeedPresets(targetReps int) (int, error) {
	var count int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM profiles`).Scan(&count); err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, nil
	}

	names := make([]string, 0, len(exercise.Presets))
	for name := range exercise.Presets {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		cfg := exercise.Presets[name]
		p := &Profile{
			ID:          uuid.NewString(),
			Name:        name,
			Side:        cfg.Side,
			DownAngle:   cfg.DownAngle,
			UpAngle:     cfg.UpAngle,
			MinMovement: cfg.MinMovement,
			Strategy:    cfg.Strategy,
			TargetReps:  targetReps,
		}
		if err := r.Create(p); err != nil {
			return 0, err
		}
	}
	return len(names), nil
}
