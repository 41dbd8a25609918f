package db

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/xuri/excelize/v2"
	"rollcall-picker/models"
)

// ImportStudentsFromExcel reads an Excel file stream and adds its rows to an
// existing classroom. Columns: A last name, B first name, C photo (optional).
// The first row is a header. Rows missing a name are skipped.
func (s *RedisService) ImportStudentsFromExcel(ctx context.Context, file io.Reader, classroomID string) (int, error) {
	exists, err := s.ClassroomExists(ctx, classroomID)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, fmt.Errorf("%w: classroom %s", ErrNotFound, classroomID)
	}

	f, err := excelize.OpenReader(file)
	if err != nil {
		log.Printf("Error opening Excel reader: %v", err)
		return 0, fmt.Errorf("%w: failed to open excel file: %v", ErrValidation, err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("Error closing excel file: %v", err)
		}
	}()

	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return 0, fmt.Errorf("%w: excel file does not contain any sheets", ErrValidation)
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		log.Printf("Error getting rows from sheet '%s': %v", sheetName, err)
		return 0, fmt.Errorf("%w: failed to get rows from sheet %s: %v", ErrValidation, sheetName, err)
	}

	toAdd := make([]models.NewStudent, 0, len(rows))
	for i, row := range rows {
		if i == 0 {
			continue // header
		}
		in := models.NewStudent{ClassroomID: classroomID}
		if len(row) > 0 {
			in.LastName = strings.TrimSpace(row[0])
		}
		if len(row) > 1 {
			in.FirstName = strings.TrimSpace(row[1])
		}
		if len(row) > 2 {
			in.Photo = strings.TrimSpace(row[2])
		}
		if in.LastName == "" || in.FirstName == "" {
			log.Printf("Skipping row %d due to missing name (last: '%s', first: '%s')", i+1, in.LastName, in.FirstName)
			continue
		}
		toAdd = append(toAdd, in)
	}

	log.Printf("Attempting to add %d students from Excel file to classroom %s", len(toAdd), classroomID)
	imported := 0
	for _, in := range toAdd {
		if _, err := s.CreateStudent(ctx, in); err != nil {
			if errors.Is(err, ErrStoreUnavailable) {
				return imported, err
			}
			log.Printf("Error adding student %s %s during import: %v", in.FirstName, in.LastName, err)
			continue
		}
		imported++
	}

	log.Printf("Successfully imported %d students into classroom %s", imported, classroomID)
	return imported, nil
}
