// Package events はサービス間で共有するイベント契約を定義する。
// イベントは過去の事実を表すイミュータブルなレコードであり、公開後に変更されない。
// JSONフィールドはcamelCaseで送信し、受信時は大文字小文字を区別しない
// （encoding/jsonの標準動作）。
package events

import "time"

// Exchange は全サービスが共有する耐久性のあるトピックエクスチェンジ名。
const Exchange = "konecta.erp"

// ルーティングキー。パターンは `{発行サービス}.{エンティティ}.{動詞}`。
const (
	EmployeeCreatedKey             = "hr.employee.created"
	EmployeeExitedKey              = "hr.employee.exited"
	EmployeeResignationApprovedKey = "hr.employee.resignation.approved"
	EmployeeTerminatedKey          = "hr.employee.terminated"

	UserProvisionedKey = "auth.user.provisioned"
	UserDeactivatedKey = "auth.user.deactivated"
	UserResignedKey    = "auth.user.resigned"
	UserTerminatedKey  = "auth.user.terminated"

	CompensationProvisionedKey = "finance.compensation.provisioned"
	CompensationBonusesKey     = "finance.compensation.bonuses"
	CompensationDeductionsKey  = "finance.compensation.deductions"
)

// 各サービスが所有する耐久性のあるキュー名。
const (
	AuthEmployeeEventsQueue  = "auth.employee-created"
	HRUserProvisionedQueue   = "hr.user-provisioned"
	UserMgmtAuthEventsQueue  = "usermgmt.auth-events"
	FinanceCompensationQueue = "finance.compensation"
)

// EmployeeCreatedEvent は従業員の新規雇用を表す。HRサービスが発行する。
type EmployeeCreatedEvent struct {
	EmployeeID     string    `json:"employeeId"`
	FullName       string    `json:"fullName"`
	WorkEmail      string    `json:"workEmail"`
	PersonalEmail  string    `json:"personalEmail"`
	Position       string    `json:"position"`
	DepartmentID   string    `json:"departmentId"`
	DepartmentName string    `json:"departmentName"`
	HireDate       time.Time `json:"hireDate"`
}

// UserProvisionedEvent はログインアカウントの作成完了を表す。認証サービスが発行する。
type UserProvisionedEvent struct {
	UserID           string    `json:"userId"`
	EmployeeID       string    `json:"employeeId"`
	Email            string    `json:"email"`
	FullName         string    `json:"fullName"`
	Roles            []string  `json:"roles"`
	ProvisionedAtUTC time.Time `json:"provisionedAtUtc"`
}

// EmployeeCompensationProvisionedEvent は報酬アカウントの初期化指示を表す。
// HRサービスがUserProvisionedEvent処理後に発行する。
type EmployeeCompensationProvisionedEvent struct {
	EmployeeID     string    `json:"employeeId"`
	FullName       string    `json:"fullName"`
	WorkEmail      string    `json:"workEmail"`
	PhoneNumber    string    `json:"phoneNumber"`
	Position       string    `json:"position"`
	DepartmentID   string    `json:"departmentId"`
	DepartmentName string    `json:"departmentName"`
	BaseSalary     float64   `json:"baseSalary"`
	Currency       string    `json:"currency"`
	EffectiveFrom  time.Time `json:"effectiveFrom"`
}

// CompensationAdjustmentItem は賞与・控除イベントの明細1件を表す。
type CompensationAdjustmentItem struct {
	Type      string    `json:"type"`
	Amount    float64   `json:"amount"`
	AppliedOn time.Time `json:"appliedOn"`
	Period    string    `json:"period,omitempty"`
	Reference string    `json:"reference,omitempty"`
}

// EmployeeCompensationBonusesIssuedEvent は賞与の支給を表す。HRサービスが発行する。
type EmployeeCompensationBonusesIssuedEvent struct {
	EmployeeID string                       `json:"employeeId"`
	FullName   string                       `json:"fullName"`
	Bonuses    []CompensationAdjustmentItem `json:"bonuses"`
	IssuedAt   time.Time                    `json:"issuedAt"`
	IssuedBy   string                       `json:"issuedBy,omitempty"`
}

// EmployeeCompensationDeductionsIssuedEvent は控除の適用を表す。HRサービスが発行する。
type EmployeeCompensationDeductionsIssuedEvent struct {
	EmployeeID string                       `json:"employeeId"`
	FullName   string                       `json:"fullName"`
	Deductions []CompensationAdjustmentItem `json:"deductions"`
	IssuedAt   time.Time                    `json:"issuedAt"`
	IssuedBy   string                       `json:"issuedBy,omitempty"`
}

// EmployeeExitedEvent は在籍終了（休職を含む広義の離脱）を表す。HRサービスが発行する。
type EmployeeExitedEvent struct {
	EmployeeID        string    `json:"employeeId"`
	UserID            string    `json:"userId,omitempty"`
	ExitDate          time.Time `json:"exitDate"`
	Reason            string    `json:"reason,omitempty"`
	EligibleForRehire *bool     `json:"eligibleForRehire,omitempty"`
	ExitStatus        string    `json:"exitStatus"`
}

// EmployeeResignationApprovedEvent は退職申請の承認を表す。HRサービスが発行する。
type EmployeeResignationApprovedEvent struct {
	ResignationID string    `json:"resignationId"`
	EmployeeID    string    `json:"employeeId"`
	UserID        string    `json:"userId,omitempty"`
	EffectiveDate time.Time `json:"effectiveDate"`
	Reason        string    `json:"reason"`
	DecidedAtUTC  time.Time `json:"decidedAtUtc"`
}

// EmployeeTerminatedEvent は懲戒等による解雇を表す。HRサービスが発行する。
type EmployeeTerminatedEvent struct {
	EmployeeID        string    `json:"employeeId"`
	UserID            string    `json:"userId,omitempty"`
	TerminatedAtUTC   time.Time `json:"terminatedAtUtc"`
	Reason            string    `json:"reason"`
	EligibleForRehire bool      `json:"eligibleForRehire"`
}

// UserDeactivatedEvent はログインアカウントの無効化を表す。認証サービスが発行する。
type UserDeactivatedEvent struct {
	UserID           string    `json:"userId"`
	EmployeeID       string    `json:"employeeId"`
	DeactivatedAtUTC time.Time `json:"deactivatedAtUtc"`
	Reason           string    `json:"reason"`
}

// UserResignedEvent は退職承認に伴うアカウント削除を表す。認証サービスが発行する。
type UserResignedEvent struct {
	UserID               string    `json:"userId"`
	EmployeeID           string    `json:"employeeId"`
	ResignationRequestID string    `json:"resignationRequestId"`
	ResignedAtUTC        time.Time `json:"resignedAtUtc"`
}

// UserTerminatedEvent は解雇に伴うアカウントロックを表す。認証サービスが発行する。
type UserTerminatedEvent struct {
	UserID          string    `json:"userId"`
	EmployeeID      string    `json:"employeeId"`
	TerminatedAtUTC time.Time `json:"terminatedAtUtc"`
	Reason          string    `json:"reason"`
}
