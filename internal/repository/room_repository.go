package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/schedwise/timetable-api/internal/models"
)

const roomColumns = "id, room_name, capacity, room_type, floor"

// RoomRepository reads rooms and their availability windows.
type RoomRepository struct {
	db *sqlx.DB
}

// NewRoomRepository creates a new room repository.
func NewRoomRepository(db *sqlx.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

// FindByID loads one room.
func (r *RoomRepository) FindByID(ctx context.Context, id int64) (*models.Room, error) {
	query := fmt.Sprintf(`SELECT %s FROM rooms WHERE id = $1`, roomColumns)
	var room models.Room
	if err := r.db.GetContext(ctx, &room, query, id); err != nil {
		return nil, err
	}
	return &room, nil
}

// ListByType returns rooms of the given type ordered ascending by capacity,
// the first-fit order the planner walks.
func (r *RoomRepository) ListByType(ctx context.Context, roomType models.MeetingType) ([]models.Room, error) {
	query := fmt.Sprintf(`SELECT %s FROM rooms WHERE room_type = $1 ORDER BY capacity ASC, id ASC`, roomColumns)
	var rooms []models.Room
	if err := r.db.SelectContext(ctx, &rooms, query, roomType); err != nil {
		return nil, fmt.Errorf("list rooms by type: %w", err)
	}
	return rooms, nil
}

// ListAvailability returns a room's availability windows.
func (r *RoomRepository) ListAvailability(ctx context.Context, roomID int64) ([]models.AvailabilityWindow, error) {
	const query = `SELECT id, room_id AS owner_id, day, start_time, end_time, created_at FROM room_availabilities WHERE room_id = $1 ORDER BY day ASC, start_time ASC`
	var windows []models.AvailabilityWindow
	if err := r.db.SelectContext(ctx, &windows, query, roomID); err != nil {
		return nil, fmt.Errorf("list room availability: %w", err)
	}
	return windows, nil
}
