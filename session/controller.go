// Package session binds one classroom roster to one selection engine.
package session

import (
	"context"
	"errors"
	"log"
	"sync"

	"rollcall-picker/models"
	"rollcall-picker/selection"
)

// RosterStore is the part of the roster store a session uses
type RosterStore interface {
	FindClassroomBySection(ctx context.Context, section string) (*models.Classroom, error)
	ListStudentsByClassroom(ctx context.Context, classroomID string) ([]models.Student, error)
	UpdateStudent(ctx context.Context, studentID string, patch models.StudentPatch) (*models.Student, error)
}

// Config for a session
type Config struct {
	Selection   selection.Config
	EventBuffer int // per-subscriber event buffer
	QueueSize   int // pending work on the event loop
}

// DefaultConfig returns the reference animation timing
func DefaultConfig() Config {
	return Config{
		Selection:   selection.DefaultConfig(),
		EventBuffer: 64,
		QueueSize:   64,
	}
}

// EditContext is the student currently open for editing
type EditContext struct {
	StudentID string          `json:"studentId"`
	Student   *models.Student `json:"student,omitempty"`
}

// State is a snapshot of a session
type State struct {
	Section       string            `json:"section"`
	Classroom     *models.Classroom `json:"classroom,omitempty"`
	Students      []models.Student  `json:"students"`
	Candidates    []string          `json:"candidates"`
	Run           selection.Run     `json:"run"`
	Winner        *models.Student   `json:"winner,omitempty"`
	WinnerVisible bool              `json:"winnerVisible"`
	Loading       bool              `json:"loading"`
	Editing       *EditContext      `json:"editing,omitempty"`
}

// Controller owns the mutable state of one classroom view. All state lives
// on a single event loop goroutine; store calls run outside it so actions
// stay responsive while a load is in flight.
type Controller struct {
	store   RosterStore
	section string
	cfg     Config

	queue     chan func()
	done      chan struct{}
	closeOnce sync.Once

	// owned by the loop
	engine        *selection.Engine
	classroom     *models.Classroom
	students      []models.Student
	candidates    []string
	winnerVisible bool
	loadSeq       uint64
	loading       bool
	editing       *EditContext
	subs          map[int]chan Event
	nextSub       int
}

// New creates a session for a section and starts its event loop
func New(store RosterStore, section string, cfg Config) *Controller {
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultConfig().EventBuffer
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	c := &Controller{
		store:   store,
		section: section,
		cfg:     cfg,
		queue:   make(chan func(), cfg.QueueSize),
		done:    make(chan struct{}),
		subs:    make(map[int]chan Event),
	}
	c.engine = selection.New(cfg.Selection, c.post, engineEvents{c})
	go c.loop()
	return c
}

func (c *Controller) loop() {
	for {
		select {
		case f := <-c.queue:
			f()
		case <-c.done:
			return
		}
	}
}

// post queues f without waiting for it
func (c *Controller) post(f func()) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.queue <- f:
		return true
	case <-c.done:
		return false
	}
}

// do runs f on the loop and waits for it
func (c *Controller) do(f func()) error {
	finished := make(chan struct{})
	if !c.post(func() {
		defer close(finished)
		f()
	}) {
		return ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Close stops the spin and the event loop and closes subscriber channels
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		_ = c.do(func() {
			c.engine.Reset()
			for id, ch := range c.subs {
				close(ch)
				delete(c.subs, id)
			}
		})
		close(c.done)
	})
}

// Load resolves the classroom and its roster. When several loads overlap
// only the most recently requested one is applied; the others return
// ErrStaleLoad. A failed load leaves the previous roster in place.
func (c *Controller) Load(ctx context.Context) (State, error) {
	var seq uint64
	if err := c.do(func() {
		c.loadSeq++
		seq = c.loadSeq
		c.loading = true
	}); err != nil {
		return State{}, err
	}

	classroom, students, fetchErr := c.fetch(ctx)

	var (
		st      State
		applied bool
	)
	if err := c.do(func() {
		if seq != c.loadSeq {
			return
		}
		applied = true
		c.loading = false
		if fetchErr != nil {
			return
		}
		c.apply(classroom, students)
		st = c.snapshot()
		c.emit(Event{Type: EventLoaded, StudentCount: len(students)})
	}); err != nil {
		return State{}, err
	}

	if !applied {
		return State{}, ErrStaleLoad
	}
	if fetchErr != nil {
		log.Printf("Error loading roster for section %s: %v", c.section, fetchErr)
		return State{}, fetchErr
	}
	return st, nil
}

func (c *Controller) fetch(ctx context.Context) (*models.Classroom, []models.Student, error) {
	classroom, err := c.store.FindClassroomBySection(ctx, c.section)
	if err != nil {
		return nil, nil, err
	}
	students, err := c.store.ListStudentsByClassroom(ctx, classroom.ID)
	if err != nil {
		return nil, nil, err
	}
	return classroom, students, nil
}

func (c *Controller) apply(classroom *models.Classroom, students []models.Student) {
	c.classroom = classroom
	c.students = students
	c.candidates = make([]string, len(students))
	for i, s := range students {
		c.candidates[i] = s.ID
	}
	if c.editing != nil {
		c.editing.Student = c.lookup(c.editing.StudentID)
		if c.editing.Student == nil {
			// edited student no longer on the roster
			c.editing = nil
		}
	}
}

func (c *Controller) lookup(studentID string) *models.Student {
	for i := range c.students {
		if c.students[i].ID == studentID {
			s := c.students[i]
			return &s
		}
	}
	return nil
}

func (c *Controller) snapshot() State {
	st := State{
		Section:       c.section,
		Classroom:     c.classroom,
		Students:      append([]models.Student(nil), c.students...),
		Candidates:    append([]string(nil), c.candidates...),
		Run:           c.engine.Snapshot(),
		WinnerVisible: c.winnerVisible,
		Loading:       c.loading,
	}
	if st.Run.Winner != "" {
		st.Winner = c.lookup(st.Run.Winner)
	}
	if c.editing != nil {
		e := *c.editing
		st.Editing = &e
	}
	return st
}

// State returns a snapshot of the session
func (c *Controller) State() (State, error) {
	var st State
	if err := c.do(func() { st = c.snapshot() }); err != nil {
		return State{}, err
	}
	return st, nil
}

// StartRandomizer spins over the last loaded roster and closes any open
// edit. It reports false when the roster is empty or a spin is already
// running.
func (c *Controller) StartRandomizer() (bool, error) {
	var started bool
	err := c.do(func() {
		if len(c.candidates) == 0 {
			return
		}
		if started = c.engine.Start(c.candidates); started {
			c.winnerVisible = false
			c.editing = nil
			log.Printf("Randomizer started for section %s over %d students", c.section, len(c.candidates))
		}
	})
	return started, err
}

// Reset stops any spin, clears the winner and hides it
func (c *Controller) Reset() error {
	return c.do(func() {
		c.engine.Reset()
		c.winnerVisible = false
		c.emit(Event{Type: EventReset})
	})
}

// CloseWinner hides the winner without touching the engine
func (c *Controller) CloseWinner() error {
	return c.do(func() {
		c.winnerVisible = false
	})
}

// EditStudent opens an edit context. It is rejected while a spin is running.
func (c *Controller) EditStudent(studentID string) (EditContext, error) {
	var (
		ec     EditContext
		result error
	)
	err := c.do(func() {
		if c.engine.Phase() == selection.Running {
			result = ErrEditWhileRunning
			return
		}
		c.editing = &EditContext{StudentID: studentID, Student: c.lookup(studentID)}
		ec = *c.editing
	})
	if err != nil {
		return EditContext{}, err
	}
	return ec, result
}

// CancelEdit closes the edit context, if any
func (c *Controller) CancelEdit() error {
	return c.do(func() {
		c.editing = nil
	})
}

// SaveEdit writes a patch for the open student, closes the edit context
// and reloads the roster
func (c *Controller) SaveEdit(ctx context.Context, patch models.StudentPatch) (*models.Student, error) {
	var (
		studentID string
		result    error
	)
	if err := c.do(func() {
		switch {
		case c.engine.Phase() == selection.Running:
			result = ErrEditWhileRunning
		case c.editing == nil:
			result = ErrNoEditOpen
		default:
			studentID = c.editing.StudentID
		}
	}); err != nil {
		return nil, err
	}
	if result != nil {
		return nil, result
	}

	updated, err := c.store.UpdateStudent(ctx, studentID, patch)
	if err != nil {
		return nil, err
	}
	if err := c.do(func() {
		if c.editing != nil && c.editing.StudentID == studentID {
			c.editing = nil
		}
	}); err != nil {
		return nil, err
	}
	c.refresh(ctx)
	return updated, nil
}

// RosterMutated reloads the roster after a create, update or delete made
// elsewhere
func (c *Controller) RosterMutated(ctx context.Context) (State, error) {
	return c.Load(ctx)
}

// refresh reloads after a mutation made through this session. The mutation
// already succeeded, so a failed or superseded reload is only logged.
func (c *Controller) refresh(ctx context.Context) {
	if _, err := c.Load(ctx); err != nil && !errors.Is(err, ErrStaleLoad) {
		log.Printf("Error refreshing roster for section %s: %v", c.section, err)
	}
}

func (c *Controller) onWinnerReady() {
	run := c.engine.Snapshot()
	if run.Phase == selection.Settled && run.Winner != "" {
		c.winnerVisible = true
	}
}

// engineEvents adapts the controller to selection.Listener. Calls arrive
// on the loop.
type engineEvents struct{ c *Controller }

func (e engineEvents) Highlight(token uint64, id string) {
	e.c.emit(Event{Type: EventHighlight, Run: token, StudentID: id})
}

func (e engineEvents) Settled(token uint64, winner string) {
	e.c.emit(Event{Type: EventSettled, Run: token, StudentID: winner, Student: e.c.lookup(winner)})
}

func (e engineEvents) WinnerReady(token uint64, winner string) {
	e.c.onWinnerReady()
	s := e.c.lookup(winner)
	if s != nil {
		log.Printf("Winner for section %s: %s", e.c.section, s.FullName())
	}
	e.c.emit(Event{Type: EventWinnerReady, Run: token, StudentID: winner, Student: s})
}
