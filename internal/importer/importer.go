// Package importer loads catalog titles from CSV exports.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/library-backend/internal/books"
	"github.com/angelmondragon/library-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/library-backend/pkg/errors"
	"github.com/angelmondragon/library-backend/pkg/logger"
)

var requiredColumns = []string{"title", "author", "year", "quantity"}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// RowError ties a rejected CSV record to its line number, header included.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

type Result struct {
	Imported int
	Rejected []*RowError
}

type Params struct {
	DB     txRunner
	Logger *logger.Logger
	// Lenient imports the valid rows even when others are rejected.
	Lenient bool
}

type Importer struct {
	db      txRunner
	logg    *logger.Logger
	lenient bool
}

func New(params Params) (*Importer, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &Importer{db: params.DB, logg: params.Logger, lenient: params.Lenient}, nil
}

// ImportBooks reads a title,author,year,quantity CSV and inserts every book in
// one transaction. Unless lenient, a single bad row aborts the whole import.
func (i *Importer) ImportBooks(ctx context.Context, r io.Reader) (*Result, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "csv is empty")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read csv header")
	}
	columns, err := indexColumns(header)
	if err != nil {
		return nil, err
	}

	var (
		rows     []models.Book
		rejected []*RowError
		combined error
	)
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			rowErr := &RowError{Line: line, Err: err}
			rejected = append(rejected, rowErr)
			combined = multierr.Append(combined, rowErr)
			continue
		}
		book, err := parseRecord(record, columns)
		if err != nil {
			rowErr := &RowError{Line: line, Err: err}
			rejected = append(rejected, rowErr)
			combined = multierr.Append(combined, rowErr)
			continue
		}
		rows = append(rows, book)
	}

	result := &Result{Rejected: rejected}
	if combined != nil && !i.lenient {
		return result, pkgerrors.Wrap(pkgerrors.CodeValidation, combined, fmt.Sprintf("%d invalid rows", len(rejected))).
			WithDetails(rowDetails(rejected))
	}
	if len(rows) == 0 {
		return result, nil
	}

	err = i.db.WithTx(ctx, func(tx *gorm.DB) error {
		return books.NewRepository(tx).CreateBatch(ctx, rows)
	})
	if err != nil {
		return result, pkgerrors.Storage(err, "insert imported books")
	}
	result.Imported = len(rows)

	if i.logg != nil {
		logCtx := i.logg.WithFields(ctx, map[string]any{
			"imported": result.Imported,
			"rejected": len(rejected),
		})
		if len(rejected) > 0 {
			i.logg.Warn(logCtx, "book import finished with rejected rows")
		} else {
			i.logg.Info(logCtx, "book import finished")
		}
	}
	return result, nil
}

func indexColumns(header []string) (map[string]int, error) {
	columns := make(map[string]int, len(header))
	for idx, name := range header {
		columns[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = idx
	}
	var missing []string
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "csv header missing columns: "+strings.Join(missing, ", ")).
			WithDetails(map[string]any{"missing": missing})
	}
	return columns, nil
}

func parseRecord(record []string, columns map[string]int) (models.Book, error) {
	field := func(name string) string {
		idx := columns[name]
		if idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	year, err := strconv.Atoi(field("year"))
	if err != nil {
		return models.Book{}, fmt.Errorf("year %q is not a number", field("year"))
	}
	quantity, err := strconv.Atoi(field("quantity"))
	if err != nil {
		return models.Book{}, fmt.Errorf("quantity %q is not a number", field("quantity"))
	}
	input := books.CreateBookInput{
		Title:    field("title"),
		Author:   field("author"),
		Year:     year,
		Quantity: quantity,
	}
	if err := books.ValidateCreate(input); err != nil {
		return models.Book{}, err
	}
	return models.Book{
		Title:    input.Title,
		Author:   input.Author,
		Year:     input.Year,
		Quantity: input.Quantity,
	}, nil
}

func rowDetails(rows []*RowError) map[string]string {
	details := make(map[string]string, len(rows))
	for _, row := range rows {
		details[strconv.Itoa(row.Line)] = row.Err.Error()
	}
	return details
}
