package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/unicover/lms/core/exam"
)

type examApi struct {
	deps ServerDeps
}

func registerExamAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := examApi{deps: deps}

	tg := g.Group("/tests", jwt)
	tg.POST("", api.createTest, adminMiddleware())
	tg.GET("/:id", api.retrieveTest)
	tg.POST("/:id/questions", api.addQuestion, adminMiddleware())
	tg.GET("/:id/questions", api.questions)
	tg.POST("/:id/attempts", api.start)
	tg.GET("/:id/attempts", api.attempts)

	ag := g.Group("/attempts", jwt)
	ag.PUT("/:id", api.save)
	ag.POST("/:id/submit", api.submit)
}

// Handlers

func (api *examApi) createTest(ctx echo.Context) error {
	var data exam.NewTest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTest")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	tst, err := api.deps.ExamSvc.CreateTest(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating test")
	}
	return ctx.JSON(http.StatusCreated, tst)
}

func (api *examApi) retrieveTest(ctx echo.Context) error {
	tst, err := api.deps.ExamSvc.GetTest(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding test")
	}
	return ctx.JSON(http.StatusOK, tst)
}

func (api *examApi) addQuestion(ctx echo.Context) error {
	var data exam.NewQuestion
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewQuestion")
	}
	data.TestID = ctx.Param("id")
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	qst, err := api.deps.ExamSvc.AddQuestion(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "adding question")
	}
	return ctx.JSON(http.StatusCreated, qst)
}

func (api *examApi) questions(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	questions, err := api.deps.ExamSvc.Questions(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying questions")
	}
	if questions == nil {
		questions = []exam.Question{}
	}
	if !claims.IsAdmin() {
		questions = studentView(questions)
	}
	return ctx.JSON(http.StatusOK, questions)
}

func (api *examApi) start(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	att, err := api.deps.ExamSvc.Start(ctx.Request().Context(), claims.Subject, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "starting attempt")
	}
	return ctx.JSON(http.StatusCreated, att)
}

func (api *examApi) attempts(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	attempts, err := api.deps.ExamSvc.Attempts(ctx.Request().Context(), claims.Subject, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying attempts")
	}
	if attempts == nil {
		attempts = []exam.Attempt{}
	}
	return ctx.JSON(http.StatusOK, attempts)
}

func (api *examApi) save(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data SaveAnswersRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SaveAnswersRequest")
	}

	att, err := api.deps.ExamSvc.Save(ctx.Request().Context(), claims.Subject, ctx.Param("id"), data.Answers)
	if err != nil {
		return errors.Wrap(err, "saving answers")
	}
	return ctx.JSON(http.StatusOK, att)
}

func (api *examApi) submit(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	att, err := api.deps.ExamSvc.Submit(ctx.Request().Context(), claims.Subject, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "submitting attempt")
	}
	return ctx.JSON(http.StatusOK, att)
}

// studentView strips the correct-answer flags before questions are
// served to a test taker.
func studentView(questions []exam.Question) []exam.Question {
	out := make([]exam.Question, len(questions))
	for i, qst := range questions {
		options := make([]exam.Option, len(qst.Options))
		for j, opt := range qst.Options {
			opt.IsCorrect = false
			options[j] = opt
		}
		qst.Options = options
		out[i] = qst
	}
	return out
}

type SaveAnswersRequest struct {
	Answers exam.Answers `json:"answers"`
}
