package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/kymoni/elimika/core/qa"
)

type qaApi struct {
	svc        *qa.Service
	validate   *validator.Validate
	translator ut.Translator
}

func registerQAAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := qaApi{
		svc:        deps.QASvc,
		validate:   deps.Validate,
		translator: deps.Translator,
	}

	qg := g.Group("/qa", jwt, assessorMiddleware())
	qg.GET("/courses", api.queryCourses)
	qg.POST("/courses/select", api.selectCourse)
	qg.GET("/plans", api.queryPlans)
	qg.POST("/plans/select", api.selectPlan)
	qg.POST("/filters", api.applyFilters)
	qg.GET("/learners", api.queryLearners)
	qg.GET("/state", api.state)
	qg.POST("/selections/toggle", api.toggleSelection)
	qg.POST("/samples/manual", api.applyManualSamples)
	qg.POST("/samples/random", api.applyRandomSamples)
}

// session resolves the per-assessor sampling session from the JWT claims.
func (api *qaApi) session(ctx echo.Context) (*qa.Session, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "getting context claims")
	}
	return api.svc.Session(qa.Assessor{
		ID:       claims.Subject,
		Email:    claims.Email,
		External: claims.IsEQA,
	}), nil
}

// Handlers

func (api *qaApi) queryCourses(ctx echo.Context) error {
	s, err := api.session(ctx)
	if err != nil {
		return err
	}

	var page Pagination
	page.Bind(ctx)

	courses, total, err := s.Courses(page.Page, page.PageSize)
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	if courses == nil {
		courses = []qa.Course{}
	}
	return ctx.JSON(http.StatusOK, CourseListResponse{Courses: courses, Total: total})
}

func (api *qaApi) selectCourse(ctx echo.Context) error {
	s, err := api.session(ctx)
	if err != nil {
		return err
	}

	var data SelectCourseRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SelectCourseRequest")
	}
	if data.Ref == "" {
		data.Ref = ctx.QueryParam("ref") // deep links pass the reference as a query param
	}

	// deep links carry an external course reference instead of an id
	if data.Ref != "" {
		err = s.SelectCourseRef(data.Ref)
	} else {
		err = s.SelectCourse(data.CourseID)
	}
	if err != nil {
		return err
	}
	return api.stateResponse(ctx, s)
}

func (api *qaApi) queryPlans(ctx echo.Context) error {
	s, err := api.session(ctx)
	if err != nil {
		return err
	}
	plans := s.State().Plans()
	if plans == nil {
		plans = []qa.Plan{}
	}
	return ctx.JSON(http.StatusOK, plans)
}

func (api *qaApi) selectPlan(ctx echo.Context) error {
	s, err := api.session(ctx)
	if err != nil {
		return err
	}

	var data SelectPlanRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SelectPlanRequest")
	}
	if err := api.validate.Struct(&data); err != nil {
		return err
	}

	if err := s.SelectPlan(data.PlanID); err != nil {
		return err
	}
	return api.stateResponse(ctx, s)
}

func (api *qaApi) applyFilters(ctx echo.Context) error {
	s, err := api.session(ctx)
	if err != nil {
		return err
	}

	var data FilterRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to FilterRequest")
	}
	if err := api.validate.Struct(&data); err != nil {
		return err
	}

	err = s.ApplyFilters(qa.Filters{
		SampleType:        data.SampleType,
		SearchText:        data.SearchText,
		PlannedSampleDate: data.PlannedSampleDate,
		Methods:           data.Methods,
	})
	if err != nil {
		return err
	}
	return api.stateResponse(ctx, s)
}

func (api *qaApi) queryLearners(ctx echo.Context) error {
	s, err := api.session(ctx)
	if err != nil {
		return err
	}
	learners := s.State().Learners()
	if learners == nil {
		learners = []qa.LearnerRow{}
	}
	return ctx.JSON(http.StatusOK, learners)
}

func (api *qaApi) state(ctx echo.Context) error {
	s, err := api.session(ctx)
	if err != nil {
		return err
	}
	return api.stateResponse(ctx, s)
}

func (api *qaApi) toggleSelection(ctx echo.Context) error {
	s, err := api.session(ctx)
	if err != nil {
		return err
	}

	var data ToggleSelectionRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ToggleSelectionRequest")
	}
	if err := api.validate.Struct(&data); err != nil {
		return err
	}

	s.ToggleUnit(data.LearnerKey, data.UnitKey)
	return api.stateResponse(ctx, s)
}

func (api *qaApi) applyManualSamples(ctx echo.Context) error {
	s, err := api.session(ctx)
	if err != nil {
		return err
	}
	if err := s.ApplyManualSamples(); err != nil {
		return err
	}
	return api.stateResponse(ctx, s)
}

func (api *qaApi) applyRandomSamples(ctx echo.Context) error {
	s, err := api.session(ctx)
	if err != nil {
		return err
	}
	if err := s.ApplyRandomSamples(); err != nil {
		return err
	}
	return api.stateResponse(ctx, s)
}

// stateResponse renders the session snapshot plus the pending one-shot notice.
func (api *qaApi) stateResponse(ctx echo.Context, s *qa.Session) error {
	return ctx.JSON(http.StatusOK, StateResponse{
		Snapshot: s.State().Snapshot(),
		Notice:   s.State().TakeNotice(),
	})
}

type (
	CourseListResponse struct {
		Courses []qa.Course `json:"courses"`
		Total   int         `json:"total"`
	}

	// SelectCourseRequest switches the course context. An empty CourseID with
	// no Ref resets the session back to the course list.
	SelectCourseRequest struct {
		CourseID string `json:"course_id"`
		Ref      string `json:"ref"`
	}

	SelectPlanRequest struct {
		PlanID string `json:"plan_id" validate:"required"`
	}

	FilterRequest struct {
		SampleType        string   `json:"sample_type" validate:"required"`
		SearchText        string   `json:"search_text"`
		PlannedSampleDate string   `json:"planned_sample_date" validate:"omitempty,dateish"`
		Methods           []string `json:"methods"`
	}

	ToggleSelectionRequest struct {
		LearnerKey string `json:"learner_key" validate:"required"`
		UnitKey    string `json:"unit_key" validate:"required"`
	}

	StateResponse struct {
		qa.Snapshot
		Notice string `json:"notice,omitempty"`
	}
)
