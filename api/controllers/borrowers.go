package controllers

import (
	"net/http"

	"github.com/angelmondragon/library-backend/api/middleware"
	"github.com/angelmondragon/library-backend/api/responses"
	"github.com/angelmondragon/library-backend/api/validators"
	"github.com/angelmondragon/library-backend/internal/borrowers"
	"github.com/angelmondragon/library-backend/internal/rentals"
	"github.com/angelmondragon/library-backend/pkg/logger"
)

const borrowerIDParam = "borrowerId"

func BorrowerList(svc borrowers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.List(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func BorrowerCreate(svc borrowers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload borrowers.CreateBorrowerInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payload.FullName = validators.SanitizeString(payload.FullName, 255)
		payload.Phone = validators.OptionalString(payload.Phone, 32)

		borrower, err := svc.Create(r.Context(), payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, borrower)
	}
}

func BorrowerGet(svc borrowers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParsePathID(r, borrowerIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		borrower, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, borrower)
	}
}

func BorrowerUpdate(svc borrowers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParsePathID(r, borrowerIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload borrowers.UpdateBorrowerInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payload.FullName = trimmed(payload.FullName, 255)
		payload.Phone = validators.OptionalString(payload.Phone, 32)

		borrower, err := svc.Update(r.Context(), id, payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, borrower)
	}
}

func BorrowerDelete(engine rentals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParsePathID(r, borrowerIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := engine.DeleteBorrower(r.Context(), id, middleware.RequestIDFromContext(r.Context())); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"id": id, "message": "Borrower deleted"})
	}
}

func BorrowerStats(svc borrowers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := svc.Stats(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stats)
	}
}
