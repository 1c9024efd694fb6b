// Package authz はアプリケーション全体の権限カタログとロールごとの
// デフォルト権限セットを定義する。
// 権限名は `{ドメイン}.{リソース}.{アクション}` の小文字セグメントで構成する。
package authz

import "strings"

// ClaimType はJWTペイロードで権限を運ぶクレーム名。
const ClaimType = "permission"

// 財務ドメインの権限。
const (
	FinanceBudgetsRead        = "finance.budgets.read"
	FinanceBudgetsManage      = "finance.budgets.manage"
	FinanceExpensesRead       = "finance.expenses.read"
	FinanceExpensesManage     = "finance.expenses.manage"
	FinanceInvoicesRead       = "finance.invoices.read"
	FinanceInvoicesManage     = "finance.invoices.manage"
	FinancePayrollRead        = "finance.payroll.read"
	FinancePayrollManage      = "finance.payroll.manage"
	FinanceCompensationRead   = "finance.compensation.read"
	FinanceCompensationManage = "finance.compensation.manage"
	FinanceSummaryView        = "finance.summary.view"
)

// HRドメインの権限。
const (
	HREmployeesRead      = "hr.employees.read"
	HREmployeesManage    = "hr.employees.manage"
	HRAttendanceRead     = "hr.attendance.read"
	HRAttendanceManage   = "hr.attendance.manage"
	HRDepartmentsRead    = "hr.departments.read"
	HRDepartmentsManage  = "hr.departments.manage"
	HRLeavesRead         = "hr.leaves.read"
	HRLeavesManage       = "hr.leaves.manage"
	HRResignationsRead   = "hr.resignations.read"
	HRResignationsManage = "hr.resignations.manage"
	HRSummaryView        = "hr.summary.view"
)

// 在庫ドメインの権限。
const (
	InventoryItemsRead        = "inventory.items.read"
	InventoryItemsManage      = "inventory.items.manage"
	InventoryWarehousesRead   = "inventory.warehouses.read"
	InventoryWarehousesManage = "inventory.warehouses.manage"
	InventoryStockRead        = "inventory.stock.read"
	InventoryStockManage      = "inventory.stock.manage"
	InventorySummaryView      = "inventory.summary.view"
)

// レポーティングドメインの権限。
const (
	ReportingOverviewView  = "reporting.overview.view"
	ReportingFinanceView   = "reporting.finance.view"
	ReportingHRView        = "reporting.hr.view"
	ReportingInventoryView = "reporting.inventory.view"
)

// ユーザー管理ドメインの権限。
const (
	UserMgmtUsersRead         = "user-management.users.read"
	UserMgmtUsersManage       = "user-management.users.manage"
	UserMgmtRolesRead         = "user-management.roles.read"
	UserMgmtRolesManage       = "user-management.roles.manage"
	UserMgmtPermissionsRead   = "user-management.permissions.read"
	UserMgmtPermissionsManage = "user-management.permissions.manage"
)

// ロール名。
const (
	RoleSystemAdmin       = "SystemAdmin"
	RoleHRAdmin           = "HrAdmin"
	RoleHRStaff           = "HrStaff"
	RoleFinanceManager    = "FinanceManager"
	RoleFinanceStaff      = "FinanceStaff"
	RoleDepartmentManager = "DepartmentManager"
	RoleEmployee          = "Employee"
)

// All は全権限をフラットにした一覧。シーディングとポリシー登録で使用する。
var All = []string{
	FinanceBudgetsRead, FinanceBudgetsManage,
	FinanceExpensesRead, FinanceExpensesManage,
	FinanceInvoicesRead, FinanceInvoicesManage,
	FinancePayrollRead, FinancePayrollManage,
	FinanceCompensationRead, FinanceCompensationManage,
	FinanceSummaryView,

	HREmployeesRead, HREmployeesManage,
	HRAttendanceRead, HRAttendanceManage,
	HRDepartmentsRead, HRDepartmentsManage,
	HRLeavesRead, HRLeavesManage,
	HRResignationsRead, HRResignationsManage,
	HRSummaryView,

	InventoryItemsRead, InventoryItemsManage,
	InventoryWarehousesRead, InventoryWarehousesManage,
	InventoryStockRead, InventoryStockManage,
	InventorySummaryView,

	ReportingOverviewView, ReportingFinanceView,
	ReportingHRView, ReportingInventoryView,

	UserMgmtUsersRead, UserMgmtUsersManage,
	UserMgmtRolesRead, UserMgmtRolesManage,
	UserMgmtPermissionsRead, UserMgmtPermissionsManage,
}

// rolePermissions はロール名（小文字化）からデフォルト権限セットへのマップ。
var rolePermissions = map[string][]string{
	strings.ToLower(RoleSystemAdmin): All,

	strings.ToLower(RoleHRAdmin): {
		HREmployeesRead, HREmployeesManage,
		HRAttendanceRead, HRAttendanceManage,
		HRDepartmentsRead, HRDepartmentsManage,
		HRLeavesRead, HRLeavesManage,
		HRResignationsRead, HRResignationsManage,
		HRSummaryView,
		ReportingOverviewView, ReportingHRView,
	},

	strings.ToLower(RoleHRStaff): {
		HREmployeesRead,
		HRAttendanceRead, HRAttendanceManage,
		HRLeavesRead, HRLeavesManage,
		HRSummaryView,
	},

	strings.ToLower(RoleFinanceManager): {
		FinanceBudgetsRead, FinanceBudgetsManage,
		FinanceExpensesRead, FinanceExpensesManage,
		FinanceInvoicesRead, FinanceInvoicesManage,
		FinancePayrollRead, FinancePayrollManage,
		FinanceCompensationRead, FinanceCompensationManage,
		FinanceSummaryView,
		ReportingOverviewView, ReportingFinanceView,
	},

	strings.ToLower(RoleFinanceStaff): {
		FinanceBudgetsRead,
		FinanceExpensesRead, FinanceExpensesManage,
		FinanceInvoicesRead, FinanceInvoicesManage,
		FinanceCompensationRead,
		FinanceSummaryView,
		ReportingOverviewView, ReportingFinanceView,
	},

	strings.ToLower(RoleDepartmentManager): {
		HREmployeesRead,
		HRAttendanceRead, HRAttendanceManage,
		HRLeavesRead, HRLeavesManage,
		HRSummaryView,
		ReportingOverviewView, ReportingHRView,
	},

	strings.ToLower(RoleEmployee): {
		HRAttendanceRead,
		HRLeavesRead,
		FinanceCompensationRead,
		ReportingOverviewView,
	},
}

// PermissionsForRole は指定ロールのデフォルト権限セットを返す。
// ロール名の大文字小文字は区別しない。未知のロールは空スライスを返す。
func PermissionsForRole(role string) []string {
	perms, ok := rolePermissions[strings.ToLower(strings.TrimSpace(role))]
	if !ok {
		return nil
	}
	out := make([]string, len(perms))
	copy(out, perms)
	return out
}

// PermissionsForRoles は複数ロールの権限セットを結合して返す。
// 重複は大文字小文字を区別せずに除去する。
func PermissionsForRoles(roles []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, role := range roles {
		for _, p := range PermissionsForRole(role) {
			key := strings.ToLower(p)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}
