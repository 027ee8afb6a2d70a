package util

// LanguageMap 支持的语言到判题引擎 language_id 的映射
var LanguageMap = map[string]int{
	"javascript": 63,
	"python":     71,
	"c++":        54,
	"java":       62,
}

// SupportedLanguageID 校验提交的 language_id 是否受支持
func SupportedLanguageID(id int) bool {
	for _, langID := range LanguageMap {
		if langID == id {
			return true
		}
	}
	return false
}
