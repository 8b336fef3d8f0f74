package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモード。引数なし・未知のコマンドもこれになる。
	CommandServe Command = "serve"
	// CommandWorker は期限切れトークンのクリーンアップを定期実行するモード。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はdistroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandCheck は事実記述を禁止語チェックにかける。設定もDBも不要。
	CommandCheck Command = "check"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch cmd := Command(args[0]); cmd {
	case CommandWorker, CommandServe, CommandMigrate, CommandHealthcheck, CommandCheck:
		return cmd
	default:
		return CommandServe
	}
}
