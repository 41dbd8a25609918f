package db

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/xuri/excelize/v2"
	"rollcall-picker/models"
)

func newTestService(t *testing.T) (*RedisService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	return NewRedisService(client), mr
}

func mustClassroom(t *testing.T, s *RedisService, grade int, section string) *models.Classroom {
	t.Helper()
	c, err := s.CreateClassroom(context.Background(), grade, section)
	if err != nil {
		t.Fatalf("CreateClassroom(%d, %q) error = %v", grade, section, err)
	}
	return c
}

func mustStudent(t *testing.T, s *RedisService, first, last, photo, classroomID string) *models.Student {
	t.Helper()
	st, err := s.CreateStudent(context.Background(), models.NewStudent{
		FirstName: first, LastName: last, Photo: photo, ClassroomID: classroomID,
	})
	if err != nil {
		t.Fatalf("CreateStudent(%s %s) error = %v", first, last, err)
	}
	return st
}

func TestFindClassroomBySectionIgnoresCase(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	created := mustClassroom(t, s, 7, "A")

	for _, section := range []string{"A", "a", " a "} {
		got, err := s.FindClassroomBySection(ctx, section)
		if err != nil {
			t.Fatalf("FindClassroomBySection(%q) error = %v", section, err)
		}
		if got.ID != created.ID || got.Grade != 7 || got.Section != "A" {
			t.Errorf("FindClassroomBySection(%q) = %+v, want %+v", section, got, created)
		}
	}

	if _, err := s.FindClassroomBySection(ctx, "B"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindClassroomBySection(B) error = %v, want ErrNotFound", err)
	}
}

func TestCreateClassroomDuplicateSection(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	mustClassroom(t, s, 7, "A")

	if _, err := s.CreateClassroom(ctx, 8, "a"); !errors.Is(err, ErrDuplicateSection) {
		t.Fatalf("CreateClassroom(8, a) error = %v, want ErrDuplicateSection", err)
	}
	classrooms, err := s.ListClassrooms(ctx)
	if err != nil {
		t.Fatalf("ListClassrooms() error = %v", err)
	}
	if len(classrooms) != 1 {
		t.Errorf("got %d classrooms, want 1", len(classrooms))
	}
}

func TestCreateClassroomValidation(t *testing.T) {
	s, _ := newTestService(t)
	tests := []struct {
		name    string
		grade   int
		section string
	}{
		{"zero grade", 0, "A"},
		{"negative grade", -3, "A"},
		{"empty section", 7, ""},
		{"blank section", 7, "   "},
		{"long section", 7, "abcdefghijklmnopq"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.CreateClassroom(context.Background(), tt.grade, tt.section); !errors.Is(err, ErrValidation) {
				t.Errorf("CreateClassroom() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestListClassroomsOrder(t *testing.T) {
	s, _ := newTestService(t)
	mustClassroom(t, s, 8, "A")
	mustClassroom(t, s, 7, "C")
	mustClassroom(t, s, 7, "B")

	classrooms, err := s.ListClassrooms(context.Background())
	if err != nil {
		t.Fatalf("ListClassrooms() error = %v", err)
	}
	want := []string{"7-B", "7-C", "8-A"}
	if len(classrooms) != len(want) {
		t.Fatalf("got %d classrooms, want %d", len(classrooms), len(want))
	}
	for i, c := range classrooms {
		if got := string(rune('0'+c.Grade)) + "-" + c.Section; got != want[i] {
			t.Errorf("classroom %d = %s, want %s", i, got, want[i])
		}
	}
}

func TestCreateStudentValidation(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	classroom := mustClassroom(t, s, 7, "A")

	tests := []struct {
		name string
		in   models.NewStudent
	}{
		{"missing first name", models.NewStudent{LastName: "Adams", ClassroomID: classroom.ID}},
		{"blank last name", models.NewStudent{FirstName: "Amy", LastName: "  ", ClassroomID: classroom.ID}},
		{"missing classroom", models.NewStudent{FirstName: "Amy", LastName: "Adams"}},
		{"unknown classroom", models.NewStudent{FirstName: "Amy", LastName: "Adams", ClassroomID: "nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.CreateStudent(ctx, tt.in); !errors.Is(err, ErrValidation) {
				t.Errorf("CreateStudent() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestListStudentsByClassroomSorted(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	classroom := mustClassroom(t, s, 7, "A")
	other := mustClassroom(t, s, 7, "B")

	zoe := mustStudent(t, s, "Zoe", "Young", "", classroom.ID)
	amy := mustStudent(t, s, "Amy", "Adams", "", classroom.ID)
	bob := mustStudent(t, s, "Bob", "adams", "", classroom.ID)
	mustStudent(t, s, "Eve", "Elsewhere", "", other.ID)

	students, err := s.ListStudentsByClassroom(ctx, classroom.ID)
	if err != nil {
		t.Fatalf("ListStudentsByClassroom() error = %v", err)
	}
	want := []string{amy.ID, bob.ID, zoe.ID}
	if len(students) != len(want) {
		t.Fatalf("got %d students, want %d", len(students), len(want))
	}
	for i, st := range students {
		if st.ID != want[i] {
			t.Errorf("student %d = %s, want %s", i, st.FullName(), want[i])
		}
	}
}

func TestUpdateStudentPartial(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	classroom := mustClassroom(t, s, 7, "A")
	amy := mustStudent(t, s, "Amy", "Adams", "https://example.com/amy.png", classroom.ID)

	first := "X"
	updated, err := s.UpdateStudent(ctx, amy.ID, models.StudentPatch{FirstName: &first})
	if err != nil {
		t.Fatalf("UpdateStudent() error = %v", err)
	}
	stored, err := s.GetStudent(ctx, amy.ID)
	if err != nil {
		t.Fatalf("GetStudent() error = %v", err)
	}
	for _, got := range []*models.Student{updated, stored} {
		if got.FirstName != "X" || got.LastName != "Adams" || got.Photo != "https://example.com/amy.png" || got.ClassroomID != classroom.ID {
			t.Errorf("after first-name patch = %+v", got)
		}
	}

	empty := ""
	if _, err := s.UpdateStudent(ctx, amy.ID, models.StudentPatch{Photo: &empty}); err != nil {
		t.Fatalf("UpdateStudent(clear photo) error = %v", err)
	}
	stored, _ = s.GetStudent(ctx, amy.ID)
	if stored.Photo != "" || stored.FirstName != "X" {
		t.Errorf("after photo clear = %+v", stored)
	}

	if _, err := s.UpdateStudent(ctx, amy.ID, models.StudentPatch{LastName: &empty}); !errors.Is(err, ErrValidation) {
		t.Errorf("UpdateStudent(empty last name) error = %v, want ErrValidation", err)
	}
	if _, err := s.UpdateStudent(ctx, "missing", models.StudentPatch{FirstName: &first}); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateStudent(missing) error = %v, want ErrNotFound", err)
	}
}

func TestDeleteStudent(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	classroom := mustClassroom(t, s, 7, "A")
	amy := mustStudent(t, s, "Amy", "Adams", "", classroom.ID)
	zoe := mustStudent(t, s, "Zoe", "Young", "", classroom.ID)

	if err := s.DeleteStudent(ctx, amy.ID); err != nil {
		t.Fatalf("DeleteStudent() error = %v", err)
	}
	if _, err := s.GetStudent(ctx, amy.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetStudent(deleted) error = %v, want ErrNotFound", err)
	}
	students, _ := s.ListStudentsByClassroom(ctx, classroom.ID)
	if len(students) != 1 || students[0].ID != zoe.ID {
		t.Errorf("roster after delete = %+v", students)
	}
	if err := s.DeleteStudent(ctx, amy.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteStudent() error = %v, want ErrNotFound", err)
	}
}

func TestImportStudentsFromExcel(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	classroom := mustClassroom(t, s, 7, "A")

	f := excelize.NewFile()
	rows := [][]interface{}{
		{"Last Name", "First Name", "Photo"},
		{"Young", "Zoe", "https://example.com/zoe.png"},
		{"Adams", "Amy"},
		{"Nobody", ""},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}

	imported, err := s.ImportStudentsFromExcel(ctx, bytes.NewReader(buf.Bytes()), classroom.ID)
	if err != nil {
		t.Fatalf("ImportStudentsFromExcel() error = %v", err)
	}
	if imported != 2 {
		t.Errorf("imported = %d, want 2", imported)
	}
	students, _ := s.ListStudentsByClassroom(ctx, classroom.ID)
	if len(students) != 2 || students[0].FullName() != "Amy Adams" || students[1].Photo != "https://example.com/zoe.png" {
		t.Errorf("roster after import = %+v", students)
	}

	if _, err := s.ImportStudentsFromExcel(ctx, bytes.NewReader(buf.Bytes()), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("import into missing classroom error = %v, want ErrNotFound", err)
	}
	if _, err := s.ImportStudentsFromExcel(ctx, bytes.NewReader([]byte("not a workbook")), classroom.ID); !errors.Is(err, ErrValidation) {
		t.Errorf("import of garbage error = %v, want ErrValidation", err)
	}
}

func TestSeedIfEmpty(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	if err := s.SeedIfEmpty(ctx); err != nil {
		t.Fatalf("SeedIfEmpty() error = %v", err)
	}
	if err := s.SeedIfEmpty(ctx); err != nil {
		t.Fatalf("second SeedIfEmpty() error = %v", err)
	}
	classrooms, _ := s.ListClassrooms(ctx)
	if len(classrooms) != 1 {
		t.Fatalf("got %d classrooms after seeding twice, want 1", len(classrooms))
	}
	students, _ := s.ListStudentsByClassroom(ctx, classrooms[0].ID)
	if len(students) == 0 {
		t.Error("seed classroom has no students")
	}
}

func TestStoreUnavailable(t *testing.T) {
	s, mr := newTestService(t)
	ctx := context.Background()
	mr.Close()

	if _, err := s.ListClassrooms(ctx); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("ListClassrooms() error = %v, want ErrStoreUnavailable", err)
	}
	if _, err := s.CreateClassroom(ctx, 7, "A"); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("CreateClassroom() error = %v, want ErrStoreUnavailable", err)
	}
	if err := s.Ping(ctx); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Ping() error = %v, want ErrStoreUnavailable", err)
	}
}
