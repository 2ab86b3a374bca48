// Package models contains the data models for the application.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Coordinates is a complete latitude/longitude pair. Payloads either carry
// both values or neither; a lone latitude is rejected at the decode boundary.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// UnmarshalJSON rejects partial pairs so a half-specified coordinate can
// never reach business logic.
func (c *Coordinates) UnmarshalJSON(data []byte) error {
	var raw struct {
		Lat *float64 `json:"lat"`
		Lng *float64 `json:"lng"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Lat == nil || raw.Lng == nil {
		return errors.New("coordinates require both lat and lng")
	}
	if *raw.Lat < -90 || *raw.Lat > 90 {
		return errors.New("latitude out of range")
	}
	if *raw.Lng < -180 || *raw.Lng > 180 {
		return errors.New("longitude out of range")
	}
	c.Lat, c.Lng = *raw.Lat, *raw.Lng
	return nil
}

// Trip is the root of the ownership chain. Every mutation must be reachable
// from a trip owned by the authenticated user.
type Trip struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	StartDate time.Time `json:"start_date"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Day is an ordered unit of a trip, identified within it by DayIndex.
type Day struct {
	ID       string    `json:"id"`
	TripID   string    `json:"trip_id"`
	DayIndex int       `json:"day_index"`
	Date     time.Time `json:"date"`
}

// Label returns the human-readable form used in previews and summaries,
// e.g. "Day 2 (Apr 11)".
func (d *Day) Label() string {
	return fmt.Sprintf("Day %d (%s)", d.DayIndex+1, d.Date.Format("Jan 2"))
}

// Destination is a scheduled stop within a day. OrderIndex values within a
// day are contiguous starting at 0. Notes may carry a single schedule
// annotation line; see the schedule package.
type Destination struct {
	ID              string       `json:"id"`
	DayID           string       `json:"day_id"`
	OrderIndex      int          `json:"order_index"`
	Name            string       `json:"name"`
	Category        string       `json:"category,omitempty"`
	City            string       `json:"city,omitempty"`
	Coordinates     *Coordinates `json:"coordinates,omitempty"`
	DurationMinutes *int         `json:"duration_minutes,omitempty"`
	Notes           string       `json:"notes,omitempty"`
	Links           []string     `json:"links,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// BaseLocation is a day-scoped home base (e.g. a hotel), distinct from the
// scheduled destinations of the day.
type BaseLocation struct {
	ID          string       `json:"id"`
	DayID       string       `json:"day_id"`
	OrderIndex  int          `json:"order_index"`
	Name        string       `json:"name"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	Context     string       `json:"context,omitempty"`
	Notes       string       `json:"notes,omitempty"`
	Links       []string     `json:"links,omitempty"`
}

// ErrorResponse represents an error response from the API.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Details any    `json:"details,omitempty"`
}
