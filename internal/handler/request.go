package handler

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/BuzzLyutic/todo-manager/internal/model"
)

const dateLayout = "2006-01-02"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// в ошибках используем имена полей из json
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	v.RegisterValidation("duedate", func(fl validator.FieldLevel) bool {
		_, err := parseDueDate(fl.Field().String())
		return err == nil
	})

	return v
}

type createTaskRequest struct {
	Title       string `json:"title" validate:"required,notblank,max=200"`
	Description string `json:"description" validate:"max=2000"`
	Status      string `json:"status" validate:"omitempty,oneof=todo in_progress completed"`
	DueDate     string `json:"due_date" validate:"omitempty,duedate"`
}

func (r createTaskRequest) toInput() model.TaskInput {
	due, _ := parseDueDate(r.DueDate)
	return model.TaskInput{
		Title:       strings.TrimSpace(r.Title),
		Description: r.Description,
		Status:      model.Status(r.Status),
		DueDate:     due,
	}
}

// updateTaskRequest - частичное обновление: отсутствующие поля не меняются.
// Пустая строка в due_date удаляет срок.
type updateTaskRequest struct {
	Title       *string `json:"title" validate:"omitempty,notblank,max=200"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	Status      *string `json:"status" validate:"omitempty,oneof=todo in_progress completed"`
	DueDate     *string `json:"due_date" validate:"omitempty,duedate"`
}

func (r updateTaskRequest) toPatch() model.TaskPatch {
	var p model.TaskPatch
	if r.Title != nil {
		title := strings.TrimSpace(*r.Title)
		p.Title = &title
	}
	p.Description = r.Description
	if r.Status != nil {
		s := model.Status(*r.Status)
		p.Status = &s
	}
	if r.DueDate != nil {
		due, _ := parseDueDate(*r.DueDate)
		if due == nil {
			p.ClearDueDate = true
		} else {
			p.DueDate = due
		}
	}
	return p
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=todo in_progress completed"`
}

// parseDueDate accepts YYYY-MM-DD (midnight UTC) or RFC3339. An empty string means no date.
func parseDueDate(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(dateLayout, v); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, fmt.Errorf("due_date must be YYYY-MM-DD or RFC3339: %q", v)
	}
	return &t, nil
}

// validationMessage сворачивает ошибки валидатора в одну строку для ответа
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required", "notblank":
			msgs = append(msgs, fe.Field()+" is required")
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param()))
		case "duedate":
			msgs = append(msgs, fe.Field()+" must be YYYY-MM-DD or RFC3339")
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fe.Field()+" is invalid")
		}
	}
	return strings.Join(msgs, "; ")
}
