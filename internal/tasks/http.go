package tasks

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/s1natex/taskboard/internal/middleware"
)

// RegisterRoutes mounts the task pages and their static assets on r.
func RegisterRoutes(r chi.Router, repo Repository, logger *slog.Logger) {
	v, err := loadViews()
	if err != nil {
		panic(err)
	}

	r.Get("/", listTasks(repo, v, logger))
	r.Get("/add", addTaskForm(v, logger))
	r.Post("/add", addTask(repo, v, logger))
	r.Get("/complete/{id:[0-9]+}", completeTask(repo, logger))
	r.Get("/delete/{id:[0-9]+}", deleteTask(repo, logger))
	r.Handle("/static/*", staticHandler())
}

func listTasks(repo Repository, v *views, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tasks, err := repo.List(r.Context())
		if err != nil {
			serverError(w, r, logger, "list_tasks", err)
			return
		}
		if err := v.render(w, http.StatusOK, pageHome, homePage{Tasks: tasks}); err != nil {
			serverError(w, r, logger, "render_home", err)
		}
	}
}

func addTaskForm(v *views, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := addTaskPage{
			Values:     formValues{Priority: string(PriorityNormal)},
			Priorities: Priorities,
			CSRFToken:  middleware.CSRFToken(r),
		}
		if err := v.render(w, http.StatusOK, pageAddTask, page); err != nil {
			serverError(w, r, logger, "render_add_task", err)
		}
	}
}

// rerenderAddTask shows the submitted form again with errs, keeping the
// values the user typed.
func rerenderAddTask(w http.ResponseWriter, r *http.Request, v *views, logger *slog.Logger, errs FieldErrors) {
	page := addTaskPage{
		Values:     formValuesFrom(r.PostForm),
		Errors:     errs,
		Priorities: Priorities,
		CSRFToken:  middleware.CSRFToken(r),
	}
	if err := v.render(w, http.StatusOK, pageAddTask, page); err != nil {
		serverError(w, r, logger, "render_add_task", err)
	}
}

func addTask(repo Repository, v *views, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "malformed form body", http.StatusBadRequest)
			return
		}

		rerender := func(errs FieldErrors) { rerenderAddTask(w, r, v, logger, errs) }

		in, errs := ParseTaskForm(r.PostForm)
		if len(errs) > 0 {
			logger.Debug("task_validation_failed",
				slog.String("req_id", chimw.GetReqID(r.Context())),
				slog.String("error", errs.Error()),
			)
			rerender(errs)
			return
		}

		t, err := repo.Create(r.Context(), in)
		switch {
		case errors.Is(err, ErrTitleRequired):
			rerender(FieldErrors{"title": "This field is required."})
			return
		case errors.Is(err, ErrTitleTooLong):
			rerender(FieldErrors{"title": fmt.Sprintf("Field cannot be longer than %d characters.", MaxTitleLen)})
			return
		case errors.Is(err, ErrInvalidPriority):
			rerender(FieldErrors{"priority": "Not a valid choice."})
			return
		case err != nil:
			serverError(w, r, logger, "create_task", err)
			return
		}

		taskOps.WithLabelValues("create").Inc()
		logger.Info("task_created",
			slog.Int64("task_id", t.ID),
			slog.String("priority", string(t.Priority)),
			slog.String("req_id", chimw.GetReqID(r.Context())),
		)
		http.Redirect(w, r, "/", http.StatusFound)
	}
}

// CSRFFailureHandler answers requests rejected by the CSRF middleware. A
// rejected add-task post gets its form back with the reason shown, like any
// other validation failure; anything else is forbidden.
func CSRFFailureHandler(logger *slog.Logger) http.Handler {
	v, err := loadViews()
	if err != nil {
		panic(err)
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reason := middleware.CSRFFailure(r)
		logger.Warn("csrf_rejected",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("reason", reason),
			slog.String("req_id", chimw.GetReqID(r.Context())),
		)
		if r.Method != http.MethodPost || r.URL.Path != "/add" {
			http.Error(w, reason, http.StatusForbidden)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, "malformed form body", http.StatusBadRequest)
			return
		}
		rerenderAddTask(w, r, v, logger, FieldErrors{"form": reason})
	})
}

func completeTask(repo Repository, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := taskID(r)
		if !ok {
			http.NotFound(w, r)
			return
		}
		if _, err := repo.Get(r.Context(), id); err != nil {
			storeError(w, r, logger, "get_task", err)
			return
		}
		if err := repo.MarkCompleted(r.Context(), id); err != nil {
			storeError(w, r, logger, "complete_task", err)
			return
		}

		taskOps.WithLabelValues("complete").Inc()
		logger.Info("task_completed", slog.Int64("task_id", id), slog.String("req_id", chimw.GetReqID(r.Context())))
		http.Redirect(w, r, "/", http.StatusFound)
	}
}

func deleteTask(repo Repository, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := taskID(r)
		if !ok {
			http.NotFound(w, r)
			return
		}
		if _, err := repo.Get(r.Context(), id); err != nil {
			storeError(w, r, logger, "get_task", err)
			return
		}
		if err := repo.Delete(r.Context(), id); err != nil {
			storeError(w, r, logger, "delete_task", err)
			return
		}

		taskOps.WithLabelValues("delete").Inc()
		logger.Info("task_deleted", slog.Int64("task_id", id), slog.String("req_id", chimw.GetReqID(r.Context())))
		http.Redirect(w, r, "/", http.StatusFound)
	}
}

func taskID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// storeError maps ErrNotFound to 404 and everything else to 500.
func storeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	if errors.Is(err, ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	serverError(w, r, logger, op, err)
}

func serverError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	logger.Error("request_failed",
		slog.String("op", op),
		slog.String("error", err.Error()),
		slog.String("req_id", chimw.GetReqID(r.Context())),
	)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}
