package app

// Command はアプリケーションの起動モードを表す。
// 4つのサービスは同一バイナリからサブコマンドで起動する。
type Command string

const (
	// CommandAuth は認証サービスモードで起動することを示す。
	CommandAuth Command = "auth"
	// CommandHR はHRサービスモードで起動することを示す。
	CommandHR Command = "hr"
	// CommandUserMgmt はユーザー管理サービスモードで起動することを示す。
	CommandUserMgmt Command = "usermgmt"
	// CommandFinance は財務サービスモードで起動することを示す。
	CommandFinance Command = "finance"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandAuthを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandAuth
	}

	switch args[0] {
	case "auth":
		return CommandAuth
	case "hr":
		return CommandHR
	case "usermgmt":
		return CommandUserMgmt
	case "finance":
		return CommandFinance
	case "migrate":
		return CommandMigrate
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandAuth
	}
}
