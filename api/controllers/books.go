package controllers

import (
	"net/http"

	"github.com/angelmondragon/library-backend/api/middleware"
	"github.com/angelmondragon/library-backend/api/responses"
	"github.com/angelmondragon/library-backend/api/validators"
	"github.com/angelmondragon/library-backend/internal/books"
	"github.com/angelmondragon/library-backend/internal/rentals"
	"github.com/angelmondragon/library-backend/pkg/logger"
)

const bookIDParam = "bookId"

func BookList(svc books.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.List(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func BookCreate(svc books.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload books.CreateBookInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payload.Title = validators.SanitizeString(payload.Title, 255)
		payload.Author = validators.SanitizeString(payload.Author, 255)

		book, err := svc.Create(r.Context(), payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, book)
	}
}

func BookGet(svc books.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParsePathID(r, bookIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		book, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, book)
	}
}

func BookUpdate(svc books.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParsePathID(r, bookIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload books.UpdateBookInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payload.Title = trimmed(payload.Title, 255)
		payload.Author = trimmed(payload.Author, 255)

		book, err := svc.Update(r.Context(), id, payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, book)
	}
}

// BookDelete removes a title through the rental engine, which refuses while
// copies are still out.
func BookDelete(engine rentals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParsePathID(r, bookIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := engine.DeleteBook(r.Context(), id, middleware.RequestIDFromContext(r.Context())); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"id": id, "message": "Book deleted"})
	}
}

func BookStats(svc books.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := svc.Stats(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stats)
	}
}

// trimmed keeps blanks so the service can reject them as empty.
func trimmed(value *string, maxLen int) *string {
	if value == nil {
		return nil
	}
	out := validators.SanitizeString(*value, maxLen)
	return &out
}
