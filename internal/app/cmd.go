package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーとバックグラウンド処理を1プロセスで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker はバックグラウンド処理のみで起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandIndex は検索インデックスを1回だけ同期的に構築することを示す。
	CommandIndex Command = "index"
	// CommandSeed は初期ポッドキャスト一覧を登録することを示す。
	CommandSeed Command = "seed"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch Command(args[0]) {
	case CommandServe, CommandWorker, CommandMigrate, CommandHealthcheck, CommandIndex, CommandSeed:
		return Command(args[0])
	default:
		return CommandServe
	}
}
