package main

import (
	"errors"
	"log"
	"net/http"
	"time"

	"quizrunner"
	"quizrunner/config"

	"github.com/gin-gonic/gin"
)

type ErrorResponse struct {
	Error    string `json:"error"`
	Message  string `json:"message,omitempty"`
	Redirect string `json:"redirect,omitempty"`
}

type StartRequest struct {
	Mode   string `json:"mode" binding:"required"`
	Source string `json:"source"`
}

type StartResponse struct {
	Handle string `json:"handle"`
}

type AnswerRequest struct {
	Index  *int   `json:"index" binding:"required"`
	Answer string `json:"answer"`
	Nav    string `json:"nav"`
}

type JumpRequest struct {
	Index *int `json:"index" binding:"required"`
}

// ResultResponse carries the score only for finished exam quizzes
type ResultResponse struct {
	Mode      quizrunner.Mode `json:"mode"`
	Total     int             `json:"total"`
	Complete  bool            `json:"complete"`
	Score     *int            `json:"score,omitempty"`
	Source    string          `json:"source"`
	StartedAt time.Time       `json:"started_at"`
}

type apiHandler struct {
	runner *quizrunner.Runner
	cfg    *config.Config
}

func newAPIRouter(runner *quizrunner.Runner, cfg *config.Config) *gin.Engine {
	h := &apiHandler{runner: runner, cfg: cfg}

	router := gin.New()
	if quizrunner.Verbose() {
		router.Use(gin.Logger())
	}
	router.Use(apiErrorHandler())

	api := router.Group("/api/quizzes")
	{
		api.POST("", h.start)
		api.GET("/:handle", h.view)
		api.POST("/:handle/answers", h.answer)
		api.POST("/:handle/jump", h.jump)
		api.GET("/:handle/result", h.result)
		api.DELETE("/:handle", h.abandon)
	}
	return router
}

func apiErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("Panic recovered: %v", err)
				jsonError(c, http.StatusInternalServerError)
				c.Abort()
			}
		}()

		c.Next()
	}
}

func jsonError(c *gin.Context, status int, message ...string) {
	msg := ""
	if len(message) > 0 {
		msg = message[0]
	}

	resp := ErrorResponse{
		Error:   http.StatusText(status),
		Message: msg,
	}
	if status == http.StatusNotFound {
		resp.Redirect = "/"
	}
	c.JSON(status, resp)
}

// quizError maps state machine errors to status codes
func quizError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, quizrunner.ErrSessionExpired):
		jsonError(c, http.StatusNotFound, "quiz session expired")
	case errors.Is(err, quizrunner.ErrIndexOutOfRange),
		errors.Is(err, quizrunner.ErrInvalidOption),
		errors.Is(err, quizrunner.ErrInvalidDirection),
		errors.Is(err, quizrunner.ErrInvalidMode):
		jsonError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, quizrunner.ErrQuizComplete):
		jsonError(c, http.StatusConflict, err.Error())
	case errors.Is(err, quizrunner.ErrNoQuestions):
		jsonError(c, http.StatusUnprocessableEntity, err.Error())
	default:
		log.Printf("Request error: %v", err)
		jsonError(c, http.StatusInternalServerError)
	}
}

func (h *apiHandler) start(c *gin.Context) {
	var req StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		jsonError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	mode, err := quizrunner.ParseMode(req.Mode)
	if err != nil {
		quizError(c, err)
		return
	}

	handle, err := h.runner.Start(c.Request.Context(), mode, h.cfg.SourceRef(req.Source))
	if err != nil {
		quizError(c, err)
		return
	}

	c.JSON(http.StatusCreated, StartResponse{Handle: handle})
}

func (h *apiHandler) view(c *gin.Context) {
	view, err := h.runner.CurrentView(c.Request.Context(), c.Param("handle"))
	if err != nil {
		quizError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *apiHandler) answer(c *gin.Context) {
	var req AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		jsonError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	handle := c.Param("handle")
	err := h.runner.SubmitAndNavigate(c.Request.Context(), handle, *req.Index, req.Answer, quizrunner.Direction(req.Nav))
	if err != nil {
		quizError(c, err)
		return
	}

	h.view(c)
}

func (h *apiHandler) jump(c *gin.Context) {
	var req JumpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		jsonError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.runner.Jump(c.Request.Context(), c.Param("handle"), *req.Index); err != nil {
		quizError(c, err)
		return
	}

	h.view(c)
}

func (h *apiHandler) result(c *gin.Context) {
	result, err := h.runner.Result(c.Request.Context(), c.Param("handle"))
	if err != nil {
		quizError(c, err)
		return
	}
	resp := ResultResponse{
		Mode:      result.Mode,
		Total:     result.Total,
		Complete:  result.Complete,
		Source:    result.Source,
		StartedAt: result.TakenAt,
	}
	if result.Mode == quizrunner.ModeExam && result.Complete {
		resp.Score = &result.Score
	}
	c.JSON(http.StatusOK, resp)
}

func (h *apiHandler) abandon(c *gin.Context) {
	if err := h.runner.Abandon(c.Request.Context(), c.Param("handle")); err != nil {
		quizError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
