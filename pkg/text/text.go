// Package text holds the bot's reply texts and the paging helper used by
// list-style commands.
package text

import "fmt"

const header = ">>> 「Kikaiken System」 \n\n"

// GlobalException is sent whenever a request fails unexpectedly.
func GlobalException() string {
	return header + "发生了意料之外的情况！\n异常信息已被上传到主脑，也许晚点再试试？"
}

// NoResult is sent when a query matched nothing.
func NoResult() string {
	return header + "没有找到任何相关结果噢？"
}

// Unpaged renders a result list that fits on one page.
func Unpaged(result string, count int) string {
	return fmt.Sprintf(header+"找到了 %d 条结果！\n%s", count, result)
}

// Paged renders one page of a longer result list.
func Paged(result string, count, page, totalPages int) string {
	return fmt.Sprintf(header+"找到了 %d 条结果！第 %d/%d 页：\n%s\n添加参数 -p [页码] 即可翻页~", count, page, totalPages, result)
}

// PageTooLarge is sent when the requested page does not exist.
func PageTooLarge(totalPages int) string {
	return fmt.Sprintf(header+"没有这么多页啦，总共就只有 %d 页噢！", totalPages)
}

// KeyAdded confirms a stored API key.
func KeyAdded(id int64, providerType, modelName string) string {
	return fmt.Sprintf(header+"已添加 API Key #%d（%s %s）！", id, providerType, modelName)
}

// KeyDeleted confirms a removed API key.
func KeyDeleted(id int64) string {
	return fmt.Sprintf(header+"API Key #%d 已经被我删除了！", id)
}

// KeyExists is sent when the same key is registered twice.
func KeyExists() string {
	return header + "这个 API Key 已经存在了噢！"
}

// UnknownCommand is sent for a command the bot does not understand.
func UnknownCommand() string {
	return header + "这个指令我看不懂噢？"
}

// InvalidArgument is sent when a command argument is malformed.
func InvalidArgument(reason string) string {
	return fmt.Sprintf(header+"参数不太对噢：%s", reason)
}
