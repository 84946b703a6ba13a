package sceneruntime

import (
	"fmt"
	"sync"

	"github.com/robofit/arcor2-sub002/internal/model"
)

// minAimingPoints is the smallest number of calibration points the aiming
// procedure accepts before Done can be called.
const minAimingPoints = 3

// AimingSession tracks the multi-point calibration procedure used to find
// a collision object's pose by touching it with a robot's end effector at
// several points.
type AimingSession struct {
	mu sync.Mutex

	objectID string
	robotID  string
	eef      string

	points map[int]model.Position
}

// aimingState holds the single in-progress aiming session, if any; only one
// aiming procedure can run at a time scene-wide, mirroring the single
// write-locked object it operates on.
type aimingState struct {
	mu      sync.Mutex
	current *AimingSession
}

func newAimingState() *aimingState {
	return &aimingState{}
}

// Start begins aiming objectID using robotID/eef. Returns an error if an
// aiming session is already in progress.
func (a *aimingState) Start(objectID, robotID, eef string) (*AimingSession, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current != nil {
		return nil, fmt.Errorf("object aiming already in progress for %q", a.current.objectID)
	}
	session := &AimingSession{
		objectID: objectID,
		robotID:  robotID,
		eef:      eef,
		points:   make(map[int]model.Position),
	}
	a.current = session
	return session, nil
}

// Cancel discards the in-progress session, if any.
func (a *aimingState) Cancel() {
	a.mu.Lock()
	a.current = nil
	a.mu.Unlock()
}

// Current returns the in-progress session, or an error if none is active.
func (a *aimingState) Current() (*AimingSession, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return nil, fmt.Errorf("no object aiming in progress")
	}
	return a.current, nil
}

// AddPoint records a calibration sample at pointIdx with the robot's
// current end effector position, and returns the set of point indexes
// collected so far.
func (s *AimingSession) AddPoint(pointIdx int, pose model.Pose) []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.points[pointIdx] = pose.Position
	return s.finishedIndexesLocked()
}

func (s *AimingSession) finishedIndexesLocked() []int {
	idxs := make([]int, 0, len(s.points))
	for idx := range s.points {
		idxs = append(idxs, idx)
	}
	return idxs
}

// Done finalizes the session, requiring at least minAimingPoints samples,
// and returns the collected points so the caller can compute the object's
// resulting pose.
func (s *AimingSession) Done() (map[int]model.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.points) < minAimingPoints {
		return nil, fmt.Errorf("object aiming needs at least %d points, got %d", minAimingPoints, len(s.points))
	}
	return s.points, nil
}
