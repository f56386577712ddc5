package cdpcontrol

import (
	"encoding/json"
	"fmt"
)

// jsPreamble resolves the chart a page exposes for synchronization. Pages
// publish their chart as window.viewsyncChart and the main series as
// window.viewsyncSeries; extra series may be listed by id in
// window.viewsyncSeriesById.
const jsPreamble = `
var chart = window.viewsyncChart || null;
var series = window.viewsyncSeries || null;
var ts = chart && typeof chart.timeScale === "function" ? chart.timeScale() : null;`

const jsRequireTimeScale = `
if (!ts) return JSON.stringify({ok:false,error_code:"` + CodeAPIUnavailable + `",error_message:"time scale unavailable"});`

const jsRequireChart = `
if (!chart) return JSON.stringify({ok:false,error_code:"` + CodeAPIUnavailable + `",error_message:"chart unavailable"});`

func jsString(v string) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func jsJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

// jsNumber formats a float so it round-trips through JS.
func jsNumber(v float64) string {
	return fmt.Sprintf("%v", v)
}

func buildIIFE(async bool, body string) string {
	prefix := "(function(){\n"
	if async {
		prefix = "(async function(){\n"
	}
	return prefix + `try {
` + body + `
} catch (err) {
return JSON.stringify({ok:false,error_code:"` + CodeEvalFailure + `",error_message:String(err && err.message || err)});
}
})()`
}

func wrapJSEval(body string) string      { return buildIIFE(false, body) }
func wrapJSEvalAsync(body string) string { return buildIIFE(true, body) }
