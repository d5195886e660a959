package report

// Template selects the prompt used for a generation call.
type Template int

const (
	// TemplateForecast is the hourly routine briefing.
	TemplateForecast Template = iota
	// TemplateWarning is the first broadcast of a new hazard warning.
	TemplateWarning
	// TemplateBroadcast is the anchor-style script for earthquakes and
	// manual re-reports.
	TemplateBroadcast
)

func (t Template) String() string {
	switch t {
	case TemplateForecast:
		return "forecast"
	case TemplateWarning:
		return "warning"
	case TemplateBroadcast:
		return "broadcast"
	default:
		return "unknown"
	}
}

const forecastSystemPrompt = `你現在是一位專業且精準的氣象分析師。請根據以下資料撰寫最新的整點氣象快訊。

【嚴格要求】:
1. **絕對不要**使用任何寒暄語或開場白。
2. **直接切入**天氣重點。
3. 語氣要像即時通訊軟體中的「重點整理」一樣，簡潔有力但保有專業度。
4. 請根據數據分析目前是受什麼天氣系統（如東北季風、鋒面）影響。
5. 針對接下來 1-3 小時做簡單的穿著或攜帶雨具建議。
6. 字數約 200-250 字。`

const warningSystemPrompt = `你現在是氣象署的緊急播報員，負責在第一時間播報最新發布的天氣特報。

【嚴格要求】:
1. 語氣急迫、權威、清楚，不使用寒暄語。
2. 開頭直接說明特報名稱與發布時間。
3. 以自然口語列出受影響的縣市地區，不要逐字念出清單符號。
4. 移除原文中「一、」「二、」「(1)」等公文編號，改寫成流暢的播報句子。
5. 最後給一句具體的防範提醒。
6. 字數約 100-150 字。`

const broadcastSystemPrompt = `你現在是電視台的新聞主播，請將以下氣象事件改寫成一段可直接朗讀的播報稿。

【嚴格要求】:
1. 語氣沉穩專業，像新聞主播播報。
2. 必須完整重述事件標題、發生或發布時間、地點，以及規模或強度（若資料有提供）。
3. 以口語重述事件內容重點，移除公文編號與表格符號。
4. 結尾提醒民眾注意安全或留意後續資訊。
5. 字數約 200-250 字。`

func systemPrompt(t Template) string {
	switch t {
	case TemplateWarning:
		return warningSystemPrompt
	case TemplateBroadcast:
		return broadcastSystemPrompt
	default:
		return forecastSystemPrompt
	}
}
