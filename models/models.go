package models

import "strings"

// Classroom represents a grade/section pair, e.g. 7-A
type Classroom struct {
	ID      string `json:"id"`                                 // Unique classroom ID
	Grade   int    `json:"grade" validate:"gte=1"`             // Grade level
	Section string `json:"section" validate:"required,max=16"` // Section name, unique ignoring case
}

// Student represents a student on a classroom roster
type Student struct {
	ID          string `json:"id"`                                   // Unique student ID
	FirstName   string `json:"firstName" validate:"required,max=64"` // Given name
	LastName    string `json:"lastName" validate:"required,max=64"`  // Family name
	Photo       string `json:"photo,omitempty"`                      // URL or data URL, empty when absent
	ClassroomID string `json:"classroomId" validate:"required"`      // ID of the owning classroom
}

// FullName returns "First Last"
func (s Student) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// NewStudent carries the fields accepted when a student is created
type NewStudent struct {
	FirstName   string `json:"firstName" validate:"required,max=64"`
	LastName    string `json:"lastName" validate:"required,max=64"`
	Photo       string `json:"photo,omitempty"`
	ClassroomID string `json:"classroomId" validate:"required"`
}

// StudentPatch is a partial update. Nil fields are left untouched;
// an empty Photo clears the stored photo.
type StudentPatch struct {
	FirstName *string `json:"firstName,omitempty" validate:"omitempty,min=1,max=64"`
	LastName  *string `json:"lastName,omitempty" validate:"omitempty,min=1,max=64"`
	Photo     *string `json:"photo,omitempty"`
}

// Empty reports whether the patch changes nothing
func (p StudentPatch) Empty() bool {
	return p.FirstName == nil && p.LastName == nil && p.Photo == nil
}

// Apply returns a copy of s with the patch applied
func (p StudentPatch) Apply(s Student) Student {
	if p.FirstName != nil {
		s.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		s.LastName = *p.LastName
	}
	if p.Photo != nil {
		s.Photo = *p.Photo
	}
	return s
}
