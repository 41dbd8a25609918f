package db

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"rollcall-picker/models"
)

const (
	classroomsKey           = "classrooms"         // Set: all classroom IDs
	classroomSectionsKey    = "classroom:sections" // Hash: lower(section) -> classroom ID
	classroomInfoPrefix     = "classroom:"         // Hash prefix: classroom:{id} -> classroom details
	classroomStudentsSuffix = ":students"          // Set suffix: classroom:{id}:students -> student IDs
	studentInfoPrefix       = "student:"           // Hash prefix: student:{id} -> student details
)

// RedisService is the roster store backed by Redis
type RedisService struct {
	Client   *redis.Client
	validate *validator.Validate
}

// NewRedisService creates a new RedisService instance
func NewRedisService(client *redis.Client) *RedisService {
	return &RedisService{
		Client:   client,
		validate: validator.New(),
	}
}

func getClassroomInfoKey(classroomID string) string {
	return classroomInfoPrefix + classroomID
}

func getClassroomStudentsKey(classroomID string) string {
	return classroomInfoPrefix + classroomID + classroomStudentsSuffix
}

func getStudentInfoKey(studentID string) string {
	return studentInfoPrefix + studentID
}

func sectionKey(section string) string {
	return strings.ToLower(strings.TrimSpace(section))
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}

func (s *RedisService) check(v interface{}) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fe.Field()+" ("+fe.Tag()+")")
		}
		return fmt.Errorf("%w: %s", ErrValidation, strings.Join(fields, ", "))
	}
	return fmt.Errorf("%w: %v", ErrValidation, err)
}

// Ping checks the Redis connection
func (s *RedisService) Ping(ctx context.Context) error {
	if err := s.Client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// --- Classroom Operations ---

// CreateClassroom claims the section name and stores a new classroom.
// Sections are unique ignoring case.
func (s *RedisService) CreateClassroom(ctx context.Context, grade int, section string) (*models.Classroom, error) {
	classroom := models.Classroom{
		ID:      uuid.New().String(),
		Grade:   grade,
		Section: strings.TrimSpace(section),
	}
	if err := s.check(classroom); err != nil {
		return nil, err
	}

	claimed, err := s.Client.HSetNX(ctx, classroomSectionsKey, sectionKey(classroom.Section), classroom.ID).Result()
	if err != nil {
		log.Printf("Error claiming section %s: %v", classroom.Section, err)
		return nil, unavailable("claim section", err)
	}
	if !claimed {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateSection, classroom.Section)
	}

	_, err = s.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, classroomsKey, classroom.ID)
		pipe.HSet(ctx, getClassroomInfoKey(classroom.ID), map[string]interface{}{
			"id":      classroom.ID,
			"grade":   classroom.Grade,
			"section": classroom.Section,
		})
		return nil
	})
	if err != nil {
		log.Printf("Error adding classroom %s: %v", classroom.Section, err)
		// Release the claim so the section can be retried
		if relErr := s.Client.HDel(ctx, classroomSectionsKey, sectionKey(classroom.Section)).Err(); relErr != nil {
			log.Printf("Error releasing section %s: %v", classroom.Section, relErr)
		}
		return nil, unavailable("add classroom", err)
	}
	log.Printf("Added classroom: %d-%s (%s)", classroom.Grade, classroom.Section, classroom.ID)
	return &classroom, nil
}

// GetClassroom retrieves a classroom by its ID
func (s *RedisService) GetClassroom(ctx context.Context, classroomID string) (*models.Classroom, error) {
	data, err := s.Client.HGetAll(ctx, getClassroomInfoKey(classroomID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		log.Printf("Error getting classroom %s: %v", classroomID, err)
		return nil, unavailable("get classroom", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: classroom %s", ErrNotFound, classroomID)
	}
	grade, _ := strconv.Atoi(data["grade"])
	return &models.Classroom{
		ID:      data["id"],
		Grade:   grade,
		Section: data["section"],
	}, nil
}

// ListClassrooms returns all classrooms ordered by grade, then section
func (s *RedisService) ListClassrooms(ctx context.Context) ([]models.Classroom, error) {
	ids, err := s.Client.SMembers(ctx, classroomsKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		log.Printf("Error getting all classroom IDs: %v", err)
		return nil, unavailable("list classrooms", err)
	}

	classrooms := make([]models.Classroom, 0, len(ids))
	for _, id := range ids {
		classroom, err := s.GetClassroom(ctx, id)
		if errors.Is(err, ErrNotFound) {
			log.Printf("Classroom %s listed but has no record, skipping", id)
			continue
		}
		if err != nil {
			return nil, err
		}
		classrooms = append(classrooms, *classroom)
	}
	SortClassrooms(classrooms)
	return classrooms, nil
}

// SortClassrooms orders by grade ascending, then section ascending
func SortClassrooms(classrooms []models.Classroom) {
	sort.SliceStable(classrooms, func(i, j int) bool {
		a, b := classrooms[i], classrooms[j]
		if a.Grade != b.Grade {
			return a.Grade < b.Grade
		}
		if la, lb := strings.ToLower(a.Section), strings.ToLower(b.Section); la != lb {
			return la < lb
		}
		return a.Section < b.Section
	})
}

// FindClassroomBySection resolves a section name, ignoring case
func (s *RedisService) FindClassroomBySection(ctx context.Context, section string) (*models.Classroom, error) {
	id, err := s.Client.HGet(ctx, classroomSectionsKey, sectionKey(section)).Result()
	if errors.Is(err, redis.Nil) || (err == nil && id == "") {
		return nil, fmt.Errorf("%w: section %q", ErrNotFound, section)
	}
	if err != nil {
		log.Printf("Error looking up section %s: %v", section, err)
		return nil, unavailable("find section", err)
	}
	return s.GetClassroom(ctx, id)
}

// ClassroomExists checks if a classroom ID exists
func (s *RedisService) ClassroomExists(ctx context.Context, classroomID string) (bool, error) {
	exists, err := s.Client.SIsMember(ctx, classroomsKey, classroomID).Result()
	if err != nil {
		log.Printf("Error checking existence for classroom %s: %v", classroomID, err)
		return false, unavailable("classroom exists", err)
	}
	return exists, nil
}

// --- Student Operations ---

// CreateStudent adds a student to an existing classroom
func (s *RedisService) CreateStudent(ctx context.Context, in models.NewStudent) (*models.Student, error) {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Photo = strings.TrimSpace(in.Photo)
	if err := s.check(in); err != nil {
		return nil, err
	}

	exists, err := s.ClassroomExists(ctx, in.ClassroomID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: classroom %s does not exist", ErrValidation, in.ClassroomID)
	}

	student := models.Student{
		ID:          uuid.New().String(),
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		Photo:       in.Photo,
		ClassroomID: in.ClassroomID,
	}
	fields := map[string]interface{}{
		"id":          student.ID,
		"firstName":   student.FirstName,
		"lastName":    student.LastName,
		"classroomId": student.ClassroomID,
	}
	if student.Photo != "" {
		fields["photo"] = student.Photo
	}

	_, err = s.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, getClassroomStudentsKey(student.ClassroomID), student.ID)
		pipe.HSet(ctx, getStudentInfoKey(student.ID), fields)
		return nil
	})
	if err != nil {
		log.Printf("Error adding student %s to classroom %s: %v", student.FullName(), student.ClassroomID, err)
		return nil, unavailable("add student", err)
	}
	return &student, nil
}

// GetStudent retrieves a student by ID
func (s *RedisService) GetStudent(ctx context.Context, studentID string) (*models.Student, error) {
	data, err := s.Client.HGetAll(ctx, getStudentInfoKey(studentID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		log.Printf("Error getting student %s: %v", studentID, err)
		return nil, unavailable("get student", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: student %s", ErrNotFound, studentID)
	}
	return studentFromHash(data), nil
}

func studentFromHash(data map[string]string) *models.Student {
	return &models.Student{
		ID:          data["id"],
		FirstName:   data["firstName"],
		LastName:    data["lastName"],
		Photo:       data["photo"],
		ClassroomID: data["classroomId"],
	}
}

// ListStudentsByClassroom returns a classroom's roster ordered by last name, then first name
func (s *RedisService) ListStudentsByClassroom(ctx context.Context, classroomID string) ([]models.Student, error) {
	ids, err := s.Client.SMembers(ctx, getClassroomStudentsKey(classroomID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		log.Printf("Error getting student IDs for classroom %s: %v", classroomID, err)
		return nil, unavailable("list students", err)
	}

	students := make([]models.Student, 0, len(ids))
	for _, id := range ids {
		student, err := s.GetStudent(ctx, id)
		if errors.Is(err, ErrNotFound) {
			// deleted between SMEMBERS and HGETALL
			continue
		}
		if err != nil {
			return nil, err
		}
		students = append(students, *student)
	}
	SortStudents(students)
	return students, nil
}

// SortStudents orders by last name, then first name, ignoring case
func SortStudents(students []models.Student) {
	sort.SliceStable(students, func(i, j int) bool {
		a, b := students[i], students[j]
		if la, lb := strings.ToLower(a.LastName), strings.ToLower(b.LastName); la != lb {
			return la < lb
		}
		if fa, fb := strings.ToLower(a.FirstName), strings.ToLower(b.FirstName); fa != fb {
			return fa < fb
		}
		return a.ID < b.ID
	})
}

// UpdateStudent applies a partial update. Only fields present in the patch change.
func (s *RedisService) UpdateStudent(ctx context.Context, studentID string, patch models.StudentPatch) (*models.Student, error) {
	var err error
	if patch.FirstName, err = trimName("FirstName", patch.FirstName); err != nil {
		return nil, err
	}
	if patch.LastName, err = trimName("LastName", patch.LastName); err != nil {
		return nil, err
	}
	if err = s.check(patch); err != nil {
		return nil, err
	}

	if patch.Empty() {
		return s.GetStudent(ctx, studentID)
	}

	set := map[string]interface{}{}
	if patch.FirstName != nil {
		set["firstName"] = *patch.FirstName
	}
	if patch.LastName != nil {
		set["lastName"] = *patch.LastName
	}
	clearPhoto := false
	if patch.Photo != nil {
		p := strings.TrimSpace(*patch.Photo)
		patch.Photo = &p
		if p != "" {
			set["photo"] = p
		} else {
			clearPhoto = true
		}
	}

	// WATCH keeps a concurrent delete from leaving a partial record behind
	key := getStudentInfoKey(studentID)
	var current *models.Student
	err = s.Client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.HGetAll(ctx, key).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if len(data) == 0 {
			return fmt.Errorf("%w: student %s", ErrNotFound, studentID)
		}
		current = studentFromHash(data)
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if len(set) > 0 {
				pipe.HSet(ctx, key, set)
			}
			if clearPhoto {
				pipe.HDel(ctx, key, "photo")
			}
			return nil
		})
		return err
	}, key)
	if errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if err != nil {
		log.Printf("Error updating student %s: %v", studentID, err)
		return nil, unavailable("update student", err)
	}

	updated := patch.Apply(*current)
	return &updated, nil
}

// trimName trims a patched name; a present but blank name is rejected
func trimName(field string, v *string) (*string, error) {
	if v == nil {
		return nil, nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil, fmt.Errorf("%w: %s (required)", ErrValidation, field)
	}
	return &t, nil
}

// DeleteStudent removes a student record and its classroom membership
func (s *RedisService) DeleteStudent(ctx context.Context, studentID string) error {
	student, err := s.GetStudent(ctx, studentID)
	if err != nil {
		return err
	}
	_, err = s.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, getStudentInfoKey(studentID))
		pipe.SRem(ctx, getClassroomStudentsKey(student.ClassroomID), studentID)
		return nil
	})
	if err != nil {
		log.Printf("Error deleting student %s: %v", studentID, err)
		return unavailable("delete student", err)
	}
	log.Printf("Deleted student: %s (%s)", student.FullName(), studentID)
	return nil
}

// --- Seed Data ---

// SeedIfEmpty adds a demo classroom when the store has no classrooms yet
func (s *RedisService) SeedIfEmpty(ctx context.Context) error {
	count, err := s.Client.SCard(ctx, classroomsKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return unavailable("count classrooms", err)
	}
	if count > 0 {
		log.Printf("Found %d classrooms in Redis, skipping seed data", count)
		return nil
	}

	log.Println("No classrooms found in Redis, adding seed data...")
	classroom, err := s.CreateClassroom(ctx, 7, "A")
	if err != nil {
		return fmt.Errorf("seed classroom: %w", err)
	}
	names := [][2]string{
		{"Emma", "Walker"}, {"Liam", "Johnson"}, {"Noah", "Miller"},
		{"Olivia", "Parker"}, {"Ava", "Reed"}, {"Mia", "Scott"},
	}
	for _, n := range names {
		if _, err := s.CreateStudent(ctx, models.NewStudent{FirstName: n[0], LastName: n[1], ClassroomID: classroom.ID}); err != nil {
			log.Printf("Error adding seed student %s %s: %v", n[0], n[1], err)
		}
	}
	log.Println("Seed data added.")
	return nil
}

// --- Utility ---

// InitializeRedisClient creates and tests a Redis client connection
func InitializeRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("could not connect to Redis at %s: %w", addr, err)
	}
	log.Printf("Successfully connected to Redis %s DB %d", addr, db)
	return rdb, nil
}
