package cdpcontrol

import "fmt"

func jsGetVisibleLogicalRange() string {
	return wrapJSEval(jsPreamble + jsRequireTimeScale + `
var r = ts.getVisibleLogicalRange();
if (!r) return JSON.stringify({ok:true,data:null});
return JSON.stringify({ok:true,data:{from:Number(r.from),to:Number(r.to)}});
`)
}

func jsSetVisibleLogicalRange(from, to float64) string {
	return wrapJSEval(fmt.Sprintf(jsPreamble+jsRequireTimeScale+`
ts.setVisibleLogicalRange({from:%s,to:%s});
return JSON.stringify({ok:true});
`, jsNumber(from), jsNumber(to)))
}

func jsGetRightOffset() string {
	return wrapJSEval(jsPreamble + jsRequireTimeScale + `
var o = typeof ts.options === "function" ? ts.options() : null;
return JSON.stringify({ok:true,data:Number(o && o.rightOffset || 0)});
`)
}

func jsSetRightOffset(bars int) string {
	return wrapJSEval(fmt.Sprintf(jsPreamble+jsRequireTimeScale+`
ts.applyOptions({rightOffset:%d});
return JSON.stringify({ok:true});
`, bars))
}

func jsCoordinateToLogical(x float64) string {
	return wrapJSEval(fmt.Sprintf(jsPreamble+jsRequireTimeScale+`
var l = ts.coordinateToLogical(%s);
if (l === null || l === undefined) return JSON.stringify({ok:true,data:{ok:false,logical:0}});
return JSON.stringify({ok:true,data:{ok:true,logical:Number(l)}});
`, jsNumber(x)))
}

func jsSetCrosshairPosition(value float64, unixSec int64, seriesRef string) string {
	return wrapJSEval(fmt.Sprintf(jsPreamble+jsRequireChart+`
var ref = %s;
var target = (ref && window.viewsyncSeriesById && window.viewsyncSeriesById[ref]) || series;
if (!target || typeof chart.setCrosshairPosition !== "function") {
  return JSON.stringify({ok:false,error_code:"`+CodeAPIUnavailable+`",error_message:"setCrosshairPosition unavailable"});
}
chart.setCrosshairPosition(%s, %d, target);
return JSON.stringify({ok:true});
`, jsString(seriesRef), jsNumber(value), unixSec))
}

func jsClearCrosshairPosition() string {
	return wrapJSEval(jsPreamble + jsRequireChart + `
if (typeof chart.clearCrosshairPosition === "function") chart.clearCrosshairPosition();
return JSON.stringify({ok:true});
`)
}

func jsBarAt(logical float64) string {
	return wrapJSEval(fmt.Sprintf(jsPreamble+`
if (!series || typeof series.dataByIndex !== "function") {
  return JSON.stringify({ok:false,error_code:"`+CodeAPIUnavailable+`",error_message:"series data unavailable"});
}
var d = series.dataByIndex(Math.round(%s));
if (!d || typeof d.time !== "number") return JSON.stringify({ok:true,data:null});
var c = d.close !== undefined ? d.close : d.value;
return JSON.stringify({ok:true,data:{
  time:d.time,
  open:Number(d.open !== undefined ? d.open : c),
  high:Number(d.high !== undefined ? d.high : c),
  low:Number(d.low !== undefined ? d.low : c),
  close:Number(c)
}});
`, jsNumber(logical)))
}

// jsInstallSync subscribes the page chart to its own range and crosshair
// notifications and forwards them through window[binding]. Installing again
// replaces the handlers of the previous install, so a fresh CDP session can
// take the page over.
func jsInstallSync(chartID, binding string) string {
	return wrapJSEval(fmt.Sprintf(jsPreamble+jsRequireTimeScale+`
var id = %s;
var name = %s;
if (typeof window[name] !== "function") {
  return JSON.stringify({ok:false,error_code:"`+CodeAPIUnavailable+`",error_message:"binding missing"});
}
function emit(ev) { ev.chart = id; try { window[name](JSON.stringify(ev)); } catch(_) {} }
var installed = window.viewsyncHandlers = window.viewsyncHandlers || {};
var prev = installed[id];
if (prev) {
  try { ts.unsubscribeVisibleLogicalRangeChange(prev.range); } catch(_) {}
  try { chart.unsubscribeCrosshairMove(prev.cross); } catch(_) {}
}
var onRange = function(r) {
  if (!r) return;
  emit({kind:"range",from:Number(r.from),to:Number(r.to)});
};
var onCross = function(p) {
  if (!p || typeof p.time !== "number" || !p.point) { emit({kind:"crosshair",time:null}); return; }
  var v = null;
  if (series && typeof series.coordinateToPrice === "function") v = series.coordinateToPrice(p.point.y);
  if (v === null && series && p.seriesData) {
    var d = p.seriesData.get(series);
    if (d) v = d.close !== undefined ? d.close : d.value;
  }
  emit({kind:"crosshair",time:p.time,value:v});
};
ts.subscribeVisibleLogicalRangeChange(onRange);
chart.subscribeCrosshairMove(onCross);
installed[id] = {range:onRange,cross:onCross};
return JSON.stringify({ok:true});
`, jsString(chartID), jsString(binding)))
}
