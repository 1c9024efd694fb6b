package hr

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/konecta/erp/internal/eventbus"
	"github.com/konecta/erp/internal/events"
	"github.com/konecta/erp/internal/model"
)

// HireRequest は新規雇用の入力を表す。
type HireRequest struct {
	FullName       string    `json:"fullName"`
	WorkEmail      string    `json:"workEmail"`
	PersonalEmail  string    `json:"personalEmail"`
	PhoneNumber    string    `json:"phoneNumber"`
	Position       string    `json:"position"`
	DepartmentID   string    `json:"departmentId"`
	DepartmentName string    `json:"departmentName"`
	Salary         float64   `json:"salary"`
	HireDate       time.Time `json:"hireDate"`
}

// LifecycleService は従業員ライフサイクルの業務操作とイベント発行を行う。
// 従業員レコードの更新を先に確定し、そのうえでイベントを発行する。
type LifecycleService struct {
	employees EmployeeRepository
	publisher eventbus.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewLifecycleService はLifecycleServiceを生成する。
func NewLifecycleService(employees EmployeeRepository, publisher eventbus.Publisher, logger *slog.Logger) *LifecycleService {
	return &LifecycleService{
		employees: employees,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Hire は従業員を登録してEmployeeCreatedEventを発行する。
// 勤務先メールアドレスは全従業員で一意でなければならない。
func (s *LifecycleService) Hire(ctx context.Context, req HireRequest) (*model.Employee, error) {
	req.FullName = strings.TrimSpace(req.FullName)
	req.WorkEmail = strings.TrimSpace(req.WorkEmail)
	if req.FullName == "" {
		return nil, model.NewValidationError("氏名は必須です")
	}
	if req.WorkEmail == "" || !strings.Contains(req.WorkEmail, "@") {
		return nil, model.NewValidationError("有効な勤務先メールアドレスが必要です")
	}
	if req.HireDate.IsZero() {
		return nil, model.NewValidationError("雇用開始日は必須です")
	}

	existing, err := s.employees.FindByWorkEmail(ctx, req.WorkEmail)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, model.NewDuplicateWorkEmailError(req.WorkEmail)
	}

	employee := &model.Employee{
		ID:             uuid.NewString(),
		FullName:       req.FullName,
		WorkEmail:      req.WorkEmail,
		PersonalEmail:  req.PersonalEmail,
		PhoneNumber:    req.PhoneNumber,
		Position:       req.Position,
		DepartmentID:   req.DepartmentID,
		DepartmentName: req.DepartmentName,
		Salary:         req.Salary,
		HireDate:       req.HireDate,
		Status:         model.EmployeeStatusActive,
	}
	if err := s.employees.Create(ctx, employee); err != nil {
		return nil, err
	}

	s.logger.Info("従業員を登録しました",
		slog.String("employee_id", employee.ID),
		slog.String("department", employee.DepartmentName))

	err = s.publisher.Publish(ctx, events.EmployeeCreatedKey, events.EmployeeCreatedEvent{
		EmployeeID:     employee.ID,
		FullName:       employee.FullName,
		WorkEmail:      employee.WorkEmail,
		PersonalEmail:  employee.PersonalEmail,
		Position:       employee.Position,
		DepartmentID:   employee.DepartmentID,
		DepartmentName: employee.DepartmentName,
		HireDate:       employee.HireDate,
	})
	if err != nil {
		return nil, err
	}
	return employee, nil
}

// Terminate は従業員を解雇状態にしてEmployeeTerminatedEventを発行する。
func (s *LifecycleService) Terminate(ctx context.Context, employeeID, reason string, eligibleForRehire bool) error {
	employee, err := s.employees.FindByID(ctx, employeeID)
	if err != nil {
		return err
	}
	if employee == nil {
		return model.NewEmployeeNotFoundError(employeeID)
	}

	if err := s.employees.UpdateStatus(ctx, employeeID, model.EmployeeStatusTerminated); err != nil {
		return err
	}
	s.logger.Info("従業員を解雇状態にしました", slog.String("employee_id", employeeID))

	return s.publisher.Publish(ctx, events.EmployeeTerminatedKey, events.EmployeeTerminatedEvent{
		EmployeeID:        employeeID,
		UserID:            employee.IdentityUserID,
		TerminatedAtUTC:   s.now().UTC(),
		Reason:            reason,
		EligibleForRehire: eligibleForRehire,
	})
}

// ApproveResignation は退職申請を承認してEmployeeResignationApprovedEventを発行する。
func (s *LifecycleService) ApproveResignation(ctx context.Context, resignationID, employeeID, reason string, effectiveDate time.Time) error {
	employee, err := s.employees.FindByID(ctx, employeeID)
	if err != nil {
		return err
	}
	if employee == nil {
		return model.NewEmployeeNotFoundError(employeeID)
	}

	if err := s.employees.UpdateStatus(ctx, employeeID, model.EmployeeStatusResigned); err != nil {
		return err
	}
	s.logger.Info("退職申請を承認しました",
		slog.String("employee_id", employeeID),
		slog.String("resignation_id", resignationID))

	return s.publisher.Publish(ctx, events.EmployeeResignationApprovedKey, events.EmployeeResignationApprovedEvent{
		ResignationID: resignationID,
		EmployeeID:    employeeID,
		UserID:        employee.IdentityUserID,
		EffectiveDate: effectiveDate,
		Reason:        reason,
		DecidedAtUTC:  s.now().UTC(),
	})
}

// MarkExited は在籍終了を記録してEmployeeExitedEventを発行する。
func (s *LifecycleService) MarkExited(ctx context.Context, employeeID, reason, exitStatus string, exitDate time.Time) error {
	employee, err := s.employees.FindByID(ctx, employeeID)
	if err != nil {
		return err
	}
	if employee == nil {
		return model.NewEmployeeNotFoundError(employeeID)
	}

	if err := s.employees.UpdateStatus(ctx, employeeID, model.EmployeeStatusResigned); err != nil {
		return err
	}
	s.logger.Info("従業員の在籍終了を記録しました", slog.String("employee_id", employeeID))

	return s.publisher.Publish(ctx, events.EmployeeExitedKey, events.EmployeeExitedEvent{
		EmployeeID: employeeID,
		UserID:     employee.IdentityUserID,
		ExitDate:   exitDate,
		Reason:     reason,
		ExitStatus: exitStatus,
	})
}
