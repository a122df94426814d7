package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/courselane/course_platform/internal/catalog"
	"github.com/courselane/course_platform/internal/events"
	"github.com/courselane/course_platform/internal/ledger"
	"github.com/courselane/course_platform/internal/logging"
	"github.com/courselane/course_platform/internal/middleware/auth"
	"github.com/courselane/course_platform/internal/models"
	"github.com/courselane/course_platform/internal/search"
	"github.com/courselane/course_platform/internal/util"
)

type CourseHandler struct {
	DB       *gorm.DB
	Ledger   *ledger.Ledger
	Producer *events.Producer
	Search   *search.Indexer
}

type clipInput struct {
	Title     string `json:"title"`
	Duration  string `json:"duration"`
	PlayerURL string `json:"player_url"`
}

type moduleInput struct {
	Title     string      `json:"title"`
	Duration  string      `json:"duration"`
	PlayerURL string      `json:"player_url"`
	Clips     []clipInput `json:"clips"`
}

type courseInput struct {
	Title       *string        `json:"title"`
	Summary     *string        `json:"summary"`
	Author      *string        `json:"author"`
	ImageURL    *string        `json:"image_url"`
	ImageAlt    *string        `json:"image_alt"`
	Category    *string        `json:"category"`
	Language    *string        `json:"language"`
	Description *string        `json:"description"`
	Topics      *[]string      `json:"topics"`
	Price       *float64       `json:"price" validate:"omitempty,gte=0"`
	Published   *bool          `json:"published"`
	Modules     *[]moduleInput `json:"modules"`
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return def
}

func toModules(inputs []moduleInput) []models.Module {
	mods := make([]models.Module, len(inputs))
	for i, in := range inputs {
		clips := make([]models.Clip, len(in.Clips))
		for j, cl := range in.Clips {
			clips[j] = models.Clip{
				Position:  j,
				Title:     cl.Title,
				Duration:  cl.Duration,
				PlayerURL: cl.PlayerURL,
			}
		}
		mods[i] = models.Module{
			Position:  i,
			Title:     in.Title,
			Duration:  in.Duration,
			PlayerURL: in.PlayerURL,
			Clips:     clips,
		}
	}
	return mods
}

func (h *CourseHandler) publish(c echo.Context, event map[string]any) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.Publish(ctx, events.TopicCourseEvents, fmt.Sprint(event["course_id"]), event); err != nil {
		c.Logger().Errorf("kafka publish error: %v", err)
	}
}

func (h *CourseHandler) index(c echo.Context, course *models.Course) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Search.IndexCourse(ctx, course); err != nil {
		c.Logger().Errorf("search index error: %v", err)
	}
}

// loadCourse fetches a course with its modules and clips in play order.
func (h *CourseHandler) loadCourse(ctx context.Context, id int) (*models.Course, error) {
	var course models.Course
	err := h.DB.WithContext(ctx).
		Preload("Modules", func(db *gorm.DB) *gorm.DB { return db.Order("modules.position ASC") }).
		Preload("Modules.Clips", func(db *gorm.DB) *gorm.DB { return db.Order("clips.position ASC") }).
		First(&course, id).Error
	if err != nil {
		return nil, err
	}
	return &course, nil
}

func (h *CourseHandler) ListCourses(c echo.Context) error {
	l := logging.FromContext(c.Request().Context()).With("handler", "course.list")

	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	q := h.DB.Model(&models.Course{}).Where("published = ?", true)
	q, err := catalog.Apply(q, c.QueryParams())
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		l.Error("list_courses_failed", "status", 500, "reason", "cannot count courses", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot list courses")
	}

	var items []models.Course
	if err := q.Order("id ASC").Offset(offset).Limit(limit).Find(&items).Error; err != nil {
		l.Error("list_courses_failed", "status", 500, "reason", "cannot fetch courses", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot list courses")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"data": items,
		"meta": echo.Map{
			"page":        page,
			"size":        limit,
			"total":       total,
			"total_pages": (total + int64(limit) - 1) / int64(limit),
			"has_prev":    page > 1,
			"has_next":    int64(offset+limit) < total,
		},
	})
}

// PreviewCourse is the unauthenticated course page: published courses only,
// modules stripped.
func (h *CourseHandler) PreviewCourse(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "id is not an integer")
	}

	course, err := h.loadCourse(c.Request().Context(), id)
	if err != nil || !course.Published {
		return echo.NewHTTPError(http.StatusNotFound, "no course found with that id")
	}

	course.Modules = nil
	return c.JSON(http.StatusOK, echo.Map{
		"message": "success",
		"data":    echo.Map{"course": course},
	})
}

// GetCourse returns the full course for entitled buyers; everyone else gets
// the course without its modules. Unpublished courses are visible only to
// their instructor.
func (h *CourseHandler) GetCourse(c echo.Context) error {
	user, ok := auth.CurrentUser(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "you are not logged in, please log in to continue")
	}

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "id is not an integer")
	}

	course, err := h.loadCourse(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "no course found with that id")
	}
	if !course.Published && course.InstructorID != user.ID {
		return echo.NewHTTPError(http.StatusNotFound, "no course found with that id")
	}

	entitled, err := h.Ledger.IsEntitled(c.Request().Context(), user.ID, course.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot check entitlement")
	}
	if !entitled {
		course.Modules = nil
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message": "success",
		"data": echo.Map{
			"course":       course,
			"is_purchased": entitled,
		},
	})
}

func (h *CourseHandler) CreateCourse(c echo.Context) error {
	user, ok := auth.CurrentUser(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "you are not logged in, please log in to continue")
	}

	var req struct {
		Title       string        `json:"title"   validate:"required"`
		Summary     string        `json:"summary" validate:"required"`
		Author      string        `json:"author"  validate:"required"`
		ImageURL    string        `json:"image_url"`
		ImageAlt    string        `json:"image_alt"`
		Category    string        `json:"category"`
		Language    string        `json:"language"`
		Description string        `json:"description"`
		Topics      []string      `json:"topics"`
		Price       float64       `json:"price" validate:"gte=0"`
		Published   bool          `json:"published"`
		Modules     []moduleInput `json:"modules"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	course := models.Course{
		Title:        req.Title,
		Summary:      req.Summary,
		Author:       req.Author,
		ImageURL:     req.ImageURL,
		ImageAlt:     req.ImageAlt,
		InstructorID: user.ID,
		Category:     req.Category,
		Language:     req.Language,
		Description:  req.Description,
		Topics:       req.Topics,
		Price:        req.Price,
		Published:    req.Published,
		Modules:      toModules(req.Modules),
	}
	course.Normalize()

	if err := h.DB.Create(&course).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot create course")
	}

	h.publish(c, map[string]any{
		"type":      "course_created",
		"course_id": course.ID,
		"title":     course.Title,
	})
	h.index(c, &course)

	return c.JSON(http.StatusCreated, echo.Map{
		"message": "success",
		"data":    echo.Map{"course": course},
	})
}

// applyInput merges a partial update into a preloaded course and re-derives
// the invariant fields. When modules are replaced the old rows are removed
// first so Save only ever inserts the new set.
func (h *CourseHandler) applyInput(course *models.Course, req *courseInput) error {
	if req.Title != nil {
		course.Title = *req.Title
	}
	if req.Summary != nil {
		course.Summary = *req.Summary
	}
	if req.Author != nil {
		course.Author = *req.Author
	}
	if req.ImageURL != nil {
		course.ImageURL = *req.ImageURL
	}
	if req.ImageAlt != nil {
		course.ImageAlt = *req.ImageAlt
	}
	if req.Category != nil {
		course.Category = *req.Category
	}
	if req.Language != nil {
		course.Language = *req.Language
	}
	if req.Description != nil {
		course.Description = *req.Description
	}
	if req.Topics != nil {
		course.Topics = *req.Topics
	}
	if req.Price != nil {
		course.Price = *req.Price
	}
	if req.Published != nil {
		course.Published = *req.Published
	}
	if req.Modules != nil {
		if err := h.clearModules(course.ID); err != nil {
			return err
		}
		course.Modules = toModules(*req.Modules)
	}

	course.Normalize()
	return h.DB.Save(course).Error
}

func (h *CourseHandler) clearModules(courseID uint) error {
	var modIDs []uint
	if err := h.DB.Model(&models.Module{}).Where("course_id = ?", courseID).Pluck("id", &modIDs).Error; err != nil {
		return err
	}
	if len(modIDs) > 0 {
		if err := h.DB.Where("module_id IN ?", modIDs).Delete(&models.Clip{}).Error; err != nil {
			return err
		}
	}
	return h.DB.Where("course_id = ?", courseID).Delete(&models.Module{}).Error
}

func (h *CourseHandler) UpdateCourse(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "id is not an integer")
	}

	course, err := h.loadCourse(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "no course found with that id")
	}

	var req courseInput
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	if err := h.applyInput(course, &req); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot update course")
	}

	h.publish(c, map[string]any{
		"type":      "course_updated",
		"course_id": course.ID,
		"title":     course.Title,
	})
	h.index(c, course)

	return c.JSON(http.StatusAccepted, echo.Map{
		"message": "success",
		"data":    echo.Map{"course": course},
	})
}

func (h *CourseHandler) DeleteCourse(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "id is not an integer")
	}

	var course models.Course
	if err := h.DB.First(&course, id).Error; err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "no course found with that id")
	}

	if err := h.deleteCourse(&course); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot delete course")
	}

	h.publish(c, map[string]any{
		"type":      "course_deleted",
		"course_id": course.ID,
	})
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Search.DeleteCourse(ctx, course.ID); err != nil {
		c.Logger().Errorf("search delete error: %v", err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *CourseHandler) deleteCourse(course *models.Course) error {
	if err := h.clearModules(course.ID); err != nil {
		return err
	}
	return h.DB.Delete(course).Error
}

// loadOwnCourse is the single ownership gate for every author-scoped course
// operation.
func (h *CourseHandler) loadOwnCourse(c echo.Context, user *models.User) (*models.Course, error) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "id is not an integer")
	}

	course, err := h.loadCourse(c.Request().Context(), id)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "no course found with that id")
	}
	if course.InstructorID != user.ID {
		return nil, echo.NewHTTPError(http.StatusForbidden, "the following course doesn't belong to you")
	}
	return course, nil
}

func (h *CourseHandler) MyCreatedCourses(c echo.Context) error {
	user, ok := auth.CurrentUser(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "you are not logged in, please log in to continue")
	}

	var courses []models.Course
	if err := h.DB.Where("instructor_id = ?", user.ID).Order("id ASC").Find(&courses).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot list courses")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status": "success",
		"data":   echo.Map{"courses": courses},
	})
}

func (h *CourseHandler) MyCreatedCourse(c echo.Context) error {
	user, ok := auth.CurrentUser(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "you are not logged in, please log in to continue")
	}

	course, err := h.loadOwnCourse(c, user)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status": "success",
		"data":   echo.Map{"course": course},
	})
}

func (h *CourseHandler) UpdateMyCreatedCourse(c echo.Context) error {
	user, ok := auth.CurrentUser(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "you are not logged in, please log in to continue")
	}

	course, err := h.loadOwnCourse(c, user)
	if err != nil {
		return err
	}

	var req courseInput
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	if err := h.applyInput(course, &req); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot update course")
	}

	h.publish(c, map[string]any{
		"type":      "course_updated",
		"course_id": course.ID,
		"title":     course.Title,
	})
	h.index(c, course)

	return c.JSON(http.StatusOK, echo.Map{
		"status": "success",
		"data":   echo.Map{"course": course},
	})
}

func (h *CourseHandler) DeleteMyCreatedCourse(c echo.Context) error {
	user, ok := auth.CurrentUser(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "you are not logged in, please log in to continue")
	}

	course, err := h.loadOwnCourse(c, user)
	if err != nil {
		return err
	}

	if err := h.deleteCourse(course); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot delete course")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Search.DeleteCourse(ctx, course.ID); err != nil {
		c.Logger().Errorf("search delete error: %v", err)
	}

	return c.NoContent(http.StatusNoContent)
}
