package app

import "strings"

// Command はstorefrontバイナリの起動モードを表す。
type Command string

const (
	// CommandServe はBFFサーバー（ページ・認証・カート・カタログAPI）を起動する。
	CommandServe Command = "serve"
	// CommandWorker は期限切れセッションの掃除ワーカーを起動する。
	CommandWorker Command = "worker"
	// CommandMigrate はスキーマのマイグレーションを適用して終了する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は起動中のサーバーの/healthを叩いて終了する。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

var commands = map[string]Command{
	string(CommandServe):       CommandServe,
	string(CommandWorker):      CommandWorker,
	string(CommandMigrate):     CommandMigrate,
	string(CommandHealthcheck): CommandHealthcheck,
}

// ParseCommand はコマンドライン引数の先頭からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeとfalseを返す。
func ParseCommand(args []string) (Command, bool) {
	if len(args) == 0 {
		return CommandServe, false
	}
	if cmd, ok := commands[strings.ToLower(strings.TrimSpace(args[0]))]; ok {
		return cmd, true
	}
	return CommandServe, false
}
