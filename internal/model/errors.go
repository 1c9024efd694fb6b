package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidCredentials   = "INVALID_CREDENTIALS"
	ErrCodeAccountLocked        = "ACCOUNT_LOCKED"
	ErrCodeEmployeeNotFound     = "EMPLOYEE_NOT_FOUND"
	ErrCodeCompensationNotFound = "COMPENSATION_NOT_FOUND"
	ErrCodeValidationFailed     = "VALIDATION_FAILED"
	ErrCodeDuplicateWorkEmail   = "DUPLICATE_WORK_EMAIL"
)

// NewInvalidCredentialsError は認証失敗エラーを生成する。
// 資格情報のどちらが誤っているかは意図的に区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認のうえ、再度お試しください。",
	}
}

// NewAccountLockedError はアカウントロック中エラーを生成する。
func NewAccountLockedError() *APIError {
	return &APIError{
		Code:     ErrCodeAccountLocked,
		Message:  "このアカウントは現在ロックされています。",
		Category: "auth",
		Action:   "システム管理者に問い合わせてください。",
	}
}

// NewEmployeeNotFoundError は従業員未検出エラーを生成する。
func NewEmployeeNotFoundError(employeeID string) *APIError {
	return &APIError{
		Code:     ErrCodeEmployeeNotFound,
		Message:  fmt.Sprintf("指定された従業員が見つかりません: %s", employeeID),
		Category: "validation",
		Action:   "従業員IDを確認してください。",
	}
}

// NewCompensationNotFoundError は報酬アカウント未検出エラーを生成する。
func NewCompensationNotFoundError(employeeID string) *APIError {
	return &APIError{
		Code:     ErrCodeCompensationNotFound,
		Message:  fmt.Sprintf("従業員の報酬アカウントが見つかりません: %s", employeeID),
		Category: "validation",
		Action:   "従業員IDを確認してください。プロビジョニング完了前の可能性があります。",
	}
}

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  fmt.Sprintf("入力内容に誤りがあります: %s", reason),
		Category: "validation",
		Action:   "リクエスト内容を確認してください。",
	}
}

// NewDuplicateWorkEmailError は勤務先メールアドレス重複エラーを生成する。
func NewDuplicateWorkEmailError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateWorkEmail,
		Message:  fmt.Sprintf("この勤務先メールアドレスは既に使用されています: %s", email),
		Category: "validation",
		Action:   "別のメールアドレスを指定するか、既存の従業員レコードを確認してください。",
	}
}
