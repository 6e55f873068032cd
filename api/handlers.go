package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"board-api/board"
	"board-api/domain"
)

const requestBodyMaxSize = 64 * 1024 // 64 KiB

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, engine *board.Engine, auth Authenticator, deduper Deduper, broker *UpdateBroker, logger *log.Logger) {
	e.GET("/api/board", getBoard(engine, auth, logger))
	e.POST("/api/board/drop", postDrop(engine, auth))
	e.POST("/api/board/search", postSearch(engine, auth))
	e.POST("/api/board/highlight", postHighlight(engine, auth))
	e.POST("/api/tasks", postTask(engine, auth, deduper))
	e.PATCH("/api/tasks/:id", patchTask(engine, auth))
	e.POST("/api/tasks/:id/subtasks/:index/toggle", postSubtaskToggle(engine, auth))
	e.DELETE("/api/tasks/:id", deleteTask(engine, auth))
	e.GET("/stream", streamBoard(engine, auth, broker))
	e.GET("/healthz", healthz())
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func getBoard(engine *board.Engine, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newBoardRequestMetrics(ctx, logger)
		c.SetRequest(c.Request().WithContext(spanCtx))
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		_, authErr := auth.ActorFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}

		// An explicit query derives an ad hoc view without touching the
		// engine's active filter; otherwise the current view is served.
		var view board.View
		if q := c.QueryParam("query"); q != "" {
			metrics.SetQueryProvided(true)
			columns, none := board.FilterColumns(engine.Columns(), q)
			view = board.View{Columns: columns, NoTasksFound: none, Highlight: engine.Highlighter().Snapshot()}
		} else {
			view = engine.View()
		}
		for _, col := range view.Columns {
			metrics.AddTasksReturned(len(col.Tasks))
		}

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, boardResponse{View: view, Annotations: annotate(view.Columns)})
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

// taskAnnotation carries the computed display fields for one task.
type taskAnnotation struct {
	TaskID            string  `json:"taskId"`
	SubtaskProgress   float64 `json:"subtaskProgress"`
	CompletedSubtasks int     `json:"completedSubtasks"`
	CategoryTag       string  `json:"categoryTag,omitempty"`
	PriorityIcon      string  `json:"priorityIcon"`
}

type boardResponse struct {
	board.View
	Annotations []taskAnnotation `json:"annotations,omitempty"`
}

func annotate(columns []domain.Column) []taskAnnotation {
	out := []taskAnnotation{}
	for _, col := range columns {
		for _, t := range col.Tasks {
			out = append(out, taskAnnotation{
				TaskID:            t.ID,
				SubtaskProgress:   t.SubtaskProgress(),
				CompletedSubtasks: t.CompletedSubtasks(),
				CategoryTag:       t.CategoryTag(),
				PriorityIcon:      t.PriorityIcon(),
			})
		}
	}
	return out
}

func postDrop(engine *board.Engine, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		actor, err := auth.ActorFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		var g board.Gesture
		if err := decodeBody(c, &g); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}

		if err := engine.Drop(actor, g); err != nil {
			return gestureError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func postSearch(engine *board.Engine, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := auth.ActorFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var body struct {
			Query string `json:"query"`
		}
		if err := decodeBody(c, &body); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		engine.Search(body.Query)
		return c.JSON(http.StatusOK, engine.View())
	}
}

func postHighlight(engine *board.Engine, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := auth.ActorFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var body struct {
			Status domain.Status `json:"status,omitempty"`
			Urgent bool          `json:"urgent,omitempty"`
		}
		if err := decodeBody(c, &body); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		switch {
		case body.Status != "":
			engine.HighlightStatus(body.Status)
		case body.Urgent:
			engine.HighlightUrgent()
		default:
			return c.String(http.StatusBadRequest, "status or urgent required")
		}
		return c.NoContent(http.StatusAccepted)
	}
}

type createTaskRequest struct {
	domain.Task
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

type createTaskResponse struct {
	ID        string `json:"id,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

func postTask(engine *board.Engine, auth Authenticator, deduper Deduper) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		actor, err := auth.ActorFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		var req createTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}

		if req.IdempotencyKey != "" && deduper != nil {
			added, err := deduper.Add(ctx, actor.UserID, req.IdempotencyKey)
			if err != nil {
				c.Logger().Error(err)
			} else if !added {
				return c.JSON(http.StatusOK, createTaskResponse{Duplicate: true})
			}
		}

		id, err := engine.Create(ctx, actor, req.Task)
		if err != nil {
			if req.IdempotencyKey != "" && deduper != nil {
				// Allow a retry after the failed create.
				if rerr := deduper.Remove(ctx, actor.UserID, req.IdempotencyKey); rerr != nil {
					c.Logger().Error(rerr)
				}
			}
			return gestureError(c, err)
		}
		return c.JSON(http.StatusCreated, createTaskResponse{ID: id})
	}
}

func patchTask(engine *board.Engine, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		actor, err := auth.ActorFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var patch domain.TaskPatch
		if err := decodeBody(c, &patch); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if err := engine.UpdateFields(c.Request().Context(), actor, c.Param("id"), patch); err != nil {
			return gestureError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func postSubtaskToggle(engine *board.Engine, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		actor, err := auth.ActorFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		index, err := strconv.Atoi(c.Param("index"))
		if err != nil {
			return c.String(http.StatusBadRequest, "invalid subtask index")
		}
		if err := engine.ToggleSubtask(c.Request().Context(), actor, c.Param("id"), index); err != nil {
			return gestureError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func deleteTask(engine *board.Engine, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		actor, err := auth.ActorFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		if err := engine.Delete(c.Request().Context(), actor, c.Param("id")); err != nil {
			return gestureError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, requestBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func gestureError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, board.ErrPermissionDenied):
		return c.JSON(http.StatusForbidden, board.Notice{Message: "You do not have permission for this action.", Denial: true})
	case errors.Is(err, board.ErrUnknownColumn):
		return c.String(http.StatusBadRequest, err.Error())
	case errors.Is(err, board.ErrTaskNotFound):
		return c.String(http.StatusNotFound, err.Error())
	case errors.Is(err, board.ErrSubtaskIndex):
		return c.String(http.StatusBadRequest, err.Error())
	default:
		c.Logger().Error(err)
		return c.String(http.StatusInternalServerError, err.Error())
	}
}
