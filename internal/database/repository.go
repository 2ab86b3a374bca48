// Package database provides PostgreSQL storage for itinerary data.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/Thepalm86/trip-sub001/internal/config"
	"github.com/Thepalm86/trip-sub001/internal/models"
)

// Repository defines the storage operations the itinerary core depends on.
// Every mutating method runs inside a single transaction so order indices
// are never observable mid-renumber.
//
// TODO: add a version counter on days if concurrent dispatch calls for the
// same day ever become a real traffic pattern.
type Repository interface {
	// GetTrip retrieves a trip by id, or nil when absent.
	GetTrip(ctx context.Context, id string) (*models.Trip, error)

	// GetDay retrieves a day by id, or nil when absent.
	GetDay(ctx context.Context, id string) (*models.Day, error)

	// GetDestination retrieves a destination by id, or nil when absent.
	GetDestination(ctx context.Context, id string) (*models.Destination, error)

	// ListDestinations retrieves a day's destinations ordered by index.
	ListDestinations(ctx context.Context, dayID string) ([]models.Destination, error)

	// InsertDestination inserts dest at dest.OrderIndex, shifting later
	// siblings up so indices stay contiguous.
	InsertDestination(ctx context.Context, dest *models.Destination) error

	// UpdateDestination persists the mutable fields of dest.
	UpdateDestination(ctx context.Context, dest *models.Destination) error

	// DeleteDestination removes a destination and closes the index gap.
	DeleteDestination(ctx context.Context, id string) error

	// ReplaceDestination removes the old destination and installs repl at
	// the vacated position, leaving sibling indices untouched.
	ReplaceDestination(ctx context.Context, oldID string, repl *models.Destination) error

	// MoveDestination relocates a destination to toIndex within toDayID,
	// renumbering both the vacated and the receiving list.
	MoveDestination(ctx context.Context, destID, toDayID string, toIndex int) error

	// ListBaseLocations retrieves a day's base locations ordered by index.
	ListBaseLocations(ctx context.Context, dayID string) ([]models.BaseLocation, error)

	// SetBaseLocation sets or appends a day's base location. With replace
	// set, existing entries (or the one at locationIndex) are removed first.
	SetBaseLocation(ctx context.Context, loc *models.BaseLocation, replace bool, locationIndex *int) error

	// Close closes the database connection.
	Close()
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresRepository creates a new PostgreSQL repository.
func NewPostgresRepository(cfg *config.Config, logger *zap.Logger) (Repository, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	repo := &PostgresRepository{
		pool:   pool,
		logger: logger,
	}

	if err := repo.migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("Connected to PostgreSQL database")
	return repo, nil
}

// migrate creates the necessary database tables if they don't exist.
func (r *PostgresRepository) migrate(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS trips (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL,
			name VARCHAR(256) NOT NULL,
			start_date DATE,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS days (
			id UUID PRIMARY KEY,
			trip_id UUID NOT NULL REFERENCES trips(id) ON DELETE CASCADE,
			day_index INTEGER NOT NULL,
			date DATE
		);

		CREATE TABLE IF NOT EXISTS destinations (
			id UUID PRIMARY KEY,
			day_id UUID NOT NULL REFERENCES days(id) ON DELETE CASCADE,
			order_index INTEGER NOT NULL,
			name VARCHAR(256) NOT NULL,
			category VARCHAR(64) DEFAULT '',
			city VARCHAR(128) DEFAULT '',
			lat DOUBLE PRECISION,
			lng DOUBLE PRECISION,
			duration_minutes INTEGER,
			notes TEXT DEFAULT '',
			links TEXT[] DEFAULT '{}',
			created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS base_locations (
			id UUID PRIMARY KEY,
			day_id UUID NOT NULL REFERENCES days(id) ON DELETE CASCADE,
			order_index INTEGER NOT NULL,
			name VARCHAR(256) NOT NULL,
			lat DOUBLE PRECISION,
			lng DOUBLE PRECISION,
			context VARCHAR(256) DEFAULT '',
			notes TEXT DEFAULT '',
			links TEXT[] DEFAULT '{}'
		);

		CREATE INDEX IF NOT EXISTS idx_days_trip ON days(trip_id, day_index);
		CREATE INDEX IF NOT EXISTS idx_destinations_day ON destinations(day_id, order_index);
		CREATE INDEX IF NOT EXISTS idx_base_locations_day ON base_locations(day_id, order_index);
	`

	_, err := r.pool.Exec(ctx, query)
	return err
}

// GetTrip retrieves a trip by its ID.
func (r *PostgresRepository) GetTrip(ctx context.Context, id string) (*models.Trip, error) {
	query := `
		SELECT id, user_id, name, start_date, created_at, updated_at
		FROM trips
		WHERE id = $1
	`

	var trip models.Trip
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&trip.ID,
		&trip.UserID,
		&trip.Name,
		&trip.StartDate,
		&trip.CreatedAt,
		&trip.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get trip", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get trip: %w", err)
	}

	return &trip, nil
}

// GetDay retrieves a day by its ID.
func (r *PostgresRepository) GetDay(ctx context.Context, id string) (*models.Day, error) {
	query := `
		SELECT id, trip_id, day_index, date
		FROM days
		WHERE id = $1
	`

	var day models.Day
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&day.ID,
		&day.TripID,
		&day.DayIndex,
		&day.Date,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get day", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get day: %w", err)
	}

	return &day, nil
}

const destinationSelect = `
	SELECT id, day_id, order_index, name, category, city, lat, lng,
	       duration_minutes, notes, links, created_at, updated_at
	FROM destinations`

func scanDestination(row pgx.Row) (*models.Destination, error) {
	var dest models.Destination
	var lat, lng *float64
	err := row.Scan(
		&dest.ID,
		&dest.DayID,
		&dest.OrderIndex,
		&dest.Name,
		&dest.Category,
		&dest.City,
		&lat,
		&lng,
		&dest.DurationMinutes,
		&dest.Notes,
		&dest.Links,
		&dest.CreatedAt,
		&dest.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lat != nil && lng != nil {
		dest.Coordinates = &models.Coordinates{Lat: *lat, Lng: *lng}
	}
	return &dest, nil
}

func splitCoordinates(c *models.Coordinates) (lat, lng *float64) {
	if c == nil {
		return nil, nil
	}
	return &c.Lat, &c.Lng
}

// GetDestination retrieves a destination by its ID.
func (r *PostgresRepository) GetDestination(ctx context.Context, id string) (*models.Destination, error) {
	dest, err := scanDestination(r.pool.QueryRow(ctx, destinationSelect+` WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get destination", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get destination: %w", err)
	}

	return dest, nil
}

// ListDestinations retrieves a day's destinations ordered by index.
func (r *PostgresRepository) ListDestinations(ctx context.Context, dayID string) ([]models.Destination, error) {
	rows, err := r.pool.Query(ctx, destinationSelect+` WHERE day_id = $1 ORDER BY order_index`, dayID)
	if err != nil {
		r.logger.Error("Failed to list destinations", zap.String("day_id", dayID), zap.Error(err))
		return nil, fmt.Errorf("failed to list destinations: %w", err)
	}
	defer rows.Close()

	destinations := []models.Destination{}
	for rows.Next() {
		dest, err := scanDestination(rows)
		if err != nil {
			r.logger.Error("Failed to scan destination row", zap.Error(err))
			return nil, fmt.Errorf("failed to scan destination: %w", err)
		}
		destinations = append(destinations, *dest)
	}

	return destinations, rows.Err()
}

// InsertDestination inserts dest at dest.OrderIndex within its day.
func (r *PostgresRepository) InsertDestination(ctx context.Context, dest *models.Destination) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var count int
		if err := tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM destinations WHERE day_id = $1`, dest.DayID,
		).Scan(&count); err != nil {
			return err
		}

		if dest.OrderIndex < 0 {
			dest.OrderIndex = 0
		}
		if dest.OrderIndex > count {
			dest.OrderIndex = count
		}

		if _, err := tx.Exec(ctx,
			`UPDATE destinations SET order_index = order_index + 1 WHERE day_id = $1 AND order_index >= $2`,
			dest.DayID, dest.OrderIndex,
		); err != nil {
			return err
		}

		lat, lng := splitCoordinates(dest.Coordinates)
		_, err := tx.Exec(ctx, `
			INSERT INTO destinations (id, day_id, order_index, name, category, city,
			                          lat, lng, duration_minutes, notes, links, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			dest.ID, dest.DayID, dest.OrderIndex, dest.Name, dest.Category, dest.City,
			lat, lng, dest.DurationMinutes, dest.Notes, dest.Links, dest.CreatedAt, dest.UpdatedAt,
		)
		return err
	})
	if err != nil {
		r.logger.Error("Failed to insert destination", zap.String("day_id", dest.DayID), zap.Error(err))
		return fmt.Errorf("failed to insert destination: %w", err)
	}

	r.logger.Info("Inserted destination",
		zap.String("id", dest.ID),
		zap.String("day_id", dest.DayID),
		zap.Int("order_index", dest.OrderIndex),
	)
	return nil
}

// UpdateDestination persists the mutable fields of dest.
func (r *PostgresRepository) UpdateDestination(ctx context.Context, dest *models.Destination) error {
	lat, lng := splitCoordinates(dest.Coordinates)
	_, err := r.pool.Exec(ctx, `
		UPDATE destinations
		SET name = $2, category = $3, city = $4, lat = $5, lng = $6,
		    duration_minutes = $7, notes = $8, links = $9, updated_at = $10
		WHERE id = $1`,
		dest.ID, dest.Name, dest.Category, dest.City, lat, lng,
		dest.DurationMinutes, dest.Notes, dest.Links, time.Now().UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to update destination", zap.String("id", dest.ID), zap.Error(err))
		return fmt.Errorf("failed to update destination: %w", err)
	}

	r.logger.Info("Updated destination", zap.String("id", dest.ID))
	return nil
}

// DeleteDestination removes a destination and closes the index gap.
func (r *PostgresRepository) DeleteDestination(ctx context.Context, id string) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var dayID string
		var index int
		err := tx.QueryRow(ctx,
			`SELECT day_id, order_index FROM destinations WHERE id = $1`, id,
		).Scan(&dayID, &index)
		if err == pgx.ErrNoRows {
			return models.NewNotFound("destination", id)
		}
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `DELETE FROM destinations WHERE id = $1`, id); err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`UPDATE destinations SET order_index = order_index - 1 WHERE day_id = $1 AND order_index > $2`,
			dayID, index,
		)
		return err
	})
	if err != nil {
		r.logger.Error("Failed to delete destination", zap.String("id", id), zap.Error(err))
		return err
	}

	r.logger.Info("Deleted destination", zap.String("id", id))
	return nil
}

// ReplaceDestination removes the old destination and installs repl at the
// vacated position in one transaction.
func (r *PostgresRepository) ReplaceDestination(ctx context.Context, oldID string, repl *models.Destination) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var dayID string
		var index int
		err := tx.QueryRow(ctx,
			`SELECT day_id, order_index FROM destinations WHERE id = $1`, oldID,
		).Scan(&dayID, &index)
		if err == pgx.ErrNoRows {
			return models.NewNotFound("destination", oldID)
		}
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `DELETE FROM destinations WHERE id = $1`, oldID); err != nil {
			return err
		}

		// Same slot, so sibling indices are untouched.
		repl.DayID = dayID
		repl.OrderIndex = index
		lat, lng := splitCoordinates(repl.Coordinates)
		_, err = tx.Exec(ctx, `
			INSERT INTO destinations (id, day_id, order_index, name, category, city,
			                          lat, lng, duration_minutes, notes, links, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			repl.ID, repl.DayID, repl.OrderIndex, repl.Name, repl.Category, repl.City,
			lat, lng, repl.DurationMinutes, repl.Notes, repl.Links, repl.CreatedAt, repl.UpdatedAt,
		)
		return err
	})
	if err != nil {
		r.logger.Error("Failed to replace destination", zap.String("id", oldID), zap.Error(err))
		return err
	}

	r.logger.Info("Replaced destination",
		zap.String("old_id", oldID),
		zap.String("new_id", repl.ID),
	)
	return nil
}

// MoveDestination relocates a destination to toIndex within toDayID. Both
// the vacated source list and the receiving target list are renumbered so
// indices stay contiguous, even for a same-day no-op position.
func (r *PostgresRepository) MoveDestination(ctx context.Context, destID, toDayID string, toIndex int) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var fromDayID string
		var fromIndex int
		err := tx.QueryRow(ctx,
			`SELECT day_id, order_index FROM destinations WHERE id = $1`, destID,
		).Scan(&fromDayID, &fromIndex)
		if err == pgx.ErrNoRows {
			return models.NewNotFound("destination", destID)
		}
		if err != nil {
			return err
		}

		// Park the moved row outside the index range, close the source gap,
		// then open a slot in the target. Keeps same-day moves correct.
		if _, err := tx.Exec(ctx,
			`UPDATE destinations SET order_index = -1 WHERE id = $1`, destID,
		); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`UPDATE destinations SET order_index = order_index - 1 WHERE day_id = $1 AND order_index > $2`,
			fromDayID, fromIndex,
		); err != nil {
			return err
		}

		var count int
		if err := tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM destinations WHERE day_id = $1 AND order_index >= 0`, toDayID,
		).Scan(&count); err != nil {
			return err
		}
		if toIndex < 0 {
			toIndex = 0
		}
		if toIndex > count {
			toIndex = count
		}

		if _, err := tx.Exec(ctx,
			`UPDATE destinations SET order_index = order_index + 1 WHERE day_id = $1 AND order_index >= $2`,
			toDayID, toIndex,
		); err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`UPDATE destinations SET day_id = $2, order_index = $3, updated_at = $4 WHERE id = $1`,
			destID, toDayID, toIndex, time.Now().UTC(),
		)
		return err
	})
	if err != nil {
		r.logger.Error("Failed to move destination",
			zap.String("id", destID),
			zap.String("to_day_id", toDayID),
			zap.Error(err),
		)
		return err
	}

	r.logger.Info("Moved destination",
		zap.String("id", destID),
		zap.String("to_day_id", toDayID),
	)
	return nil
}

// ListBaseLocations retrieves a day's base locations ordered by index.
func (r *PostgresRepository) ListBaseLocations(ctx context.Context, dayID string) ([]models.BaseLocation, error) {
	query := `
		SELECT id, day_id, order_index, name, lat, lng, context, notes, links
		FROM base_locations
		WHERE day_id = $1
		ORDER BY order_index
	`

	rows, err := r.pool.Query(ctx, query, dayID)
	if err != nil {
		r.logger.Error("Failed to list base locations", zap.String("day_id", dayID), zap.Error(err))
		return nil, fmt.Errorf("failed to list base locations: %w", err)
	}
	defer rows.Close()

	locations := []models.BaseLocation{}
	for rows.Next() {
		var loc models.BaseLocation
		var lat, lng *float64
		err := rows.Scan(
			&loc.ID,
			&loc.DayID,
			&loc.OrderIndex,
			&loc.Name,
			&lat,
			&lng,
			&loc.Context,
			&loc.Notes,
			&loc.Links,
		)
		if err != nil {
			r.logger.Error("Failed to scan base location row", zap.Error(err))
			return nil, fmt.Errorf("failed to scan base location: %w", err)
		}
		if lat != nil && lng != nil {
			loc.Coordinates = &models.Coordinates{Lat: *lat, Lng: *lng}
		}
		locations = append(locations, loc)
	}

	return locations, rows.Err()
}

// SetBaseLocation sets or appends a day's base location.
func (r *PostgresRepository) SetBaseLocation(ctx context.Context, loc *models.BaseLocation, replace bool, locationIndex *int) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if replace {
			if locationIndex != nil {
				if _, err := tx.Exec(ctx,
					`DELETE FROM base_locations WHERE day_id = $1 AND order_index = $2`,
					loc.DayID, *locationIndex,
				); err != nil {
					return err
				}
				loc.OrderIndex = *locationIndex
			} else {
				if _, err := tx.Exec(ctx,
					`DELETE FROM base_locations WHERE day_id = $1`, loc.DayID,
				); err != nil {
					return err
				}
				loc.OrderIndex = 0
			}
		} else {
			var count int
			if err := tx.QueryRow(ctx,
				`SELECT COUNT(*) FROM base_locations WHERE day_id = $1`, loc.DayID,
			).Scan(&count); err != nil {
				return err
			}
			loc.OrderIndex = count
		}

		lat, lng := splitCoordinates(loc.Coordinates)
		_, err := tx.Exec(ctx, `
			INSERT INTO base_locations (id, day_id, order_index, name, lat, lng, context, notes, links)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			loc.ID, loc.DayID, loc.OrderIndex, loc.Name, lat, lng, loc.Context, loc.Notes, loc.Links,
		)
		return err
	})
	if err != nil {
		r.logger.Error("Failed to set base location", zap.String("day_id", loc.DayID), zap.Error(err))
		return fmt.Errorf("failed to set base location: %w", err)
	}

	r.logger.Info("Set base location",
		zap.String("id", loc.ID),
		zap.String("day_id", loc.DayID),
	)
	return nil
}

// Close closes the database connection pool.
func (r *PostgresRepository) Close() {
	r.pool.Close()
	r.logger.Info("Closed database connection")
}
