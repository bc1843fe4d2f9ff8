package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はローカル同期ゲートウェイとして起動することを示す。
	CommandServe Command = "serve"
	// CommandEvents はイベントを1回取得し、今後／過去の分割をJSONで出力することを示す。
	CommandEvents Command = "events"
	// CommandNews はニュースを1回取得し、日付順の一覧をJSONで出力することを示す。
	CommandNews Command = "news"
	// CommandHealthcheck は起動中のゲートウェイのヘルスチェックを実行することを示す。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "serve":
		return CommandServe
	case "events":
		return CommandEvents
	case "news":
		return CommandNews
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}
