// Package model はドメインモデルを定義する。
package model

import "time"

// IdentityUser は認証サービスが所有するログインアカウントを表す。
// 従業員イベントによりプロビジョニングされ、退職・解雇イベントでロックまたは削除される。
type IdentityUser struct {
	ID             string
	Email          string
	Username       string
	FullName       string
	EmployeeID     string // 紐付く従業員ID。管理者アカウント等では空。
	PasswordHash   string
	EmailConfirmed bool
	LockoutEnabled bool
	LockoutEnd     *time.Time
	LastLoginAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsLockedOut はアカウントが現在ロックアウト中かどうかを返す。
func (u *IdentityUser) IsLockedOut(now time.Time) bool {
	return u.LockoutEnabled && u.LockoutEnd != nil && u.LockoutEnd.After(now)
}

// EmployeeStatus は従業員の在籍状態を表す。
type EmployeeStatus string

const (
	EmployeeStatusActive     EmployeeStatus = "active"
	EmployeeStatusResigned   EmployeeStatus = "resigned"
	EmployeeStatusTerminated EmployeeStatus = "terminated"
)

// Employee はHRサービスが所有する従業員レコードを表す。
// IdentityUserIDはUserProvisionedイベント受信時に1度だけ設定され、以降変更されない。
type Employee struct {
	ID             string
	FullName       string
	WorkEmail      string
	PersonalEmail  string
	PhoneNumber    string
	Position       string
	DepartmentID   string
	DepartmentName string
	Salary         float64
	HireDate       time.Time
	IdentityUserID string // プロビジョニング完了まで空
	Status         EmployeeStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DirectoryStatus はディレクトリユーザーの状態を表す。
type DirectoryStatus string

const (
	DirectoryStatusActive     DirectoryStatus = "active"
	DirectoryStatusInactive   DirectoryStatus = "inactive"
	DirectoryStatusTerminated DirectoryStatus = "terminated"
)

// DirectoryUser はユーザー管理サービスが所有するディレクトリ行を表す。
// 外部ID（認証サービスのユーザーID）をキーにUPSERTされる。
type DirectoryUser struct {
	ID                   string
	ExternalUserID       string
	Email                string
	FullName             string
	PrimaryRole          string
	Status               DirectoryStatus
	IsLocked             bool
	IsDeleted            bool
	DeletedAt            *time.Time
	ResignationRequestID string
	TerminationReason    string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// CompensationAccount は財務サービスが所有する報酬アカウントを表す。
// 従業員IDをキーに冪等にUPSERTされ、賞与・控除イベントで加算更新される。
type CompensationAccount struct {
	EmployeeID      string
	FullName        string
	WorkEmail       string
	PhoneNumber     string
	Position        string
	DepartmentID    string
	DepartmentName  string
	BaseSalary      float64
	Currency        string
	EffectiveFrom   time.Time
	TotalBonuses    float64
	TotalDeductions float64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CompensationAdjustment は報酬アカウントへの賞与または控除の明細を表す。
type CompensationAdjustment struct {
	ID         string
	EmployeeID string
	Kind       string // "bonus" または "deduction"
	Type       string
	Amount     float64
	AppliedOn  time.Time
	Period     string
	Reference  string
	IssuedBy   string
	CreatedAt  time.Time
}

// AuthorizationProfile はひとりのサブジェクトに対する権威的なロール・権限集合を表す。
// ユーザー管理サービスがログイン時に提供し、トークン発行者は永続化しない。
type AuthorizationProfile struct {
	Roles       []string
	Permissions []string
}
