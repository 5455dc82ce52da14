package browser

import (
	"encoding/json"
	"fmt"
)

// Every script evaluates to a JSON object keyed by category. Missing
// capabilities are reported as null, which decodes to Unavailable.

const navigatorScript = `(() => {
  const v = (x) => (x === undefined ? null : x);
  let props = 0;
  for (const _ in navigator) props++;
  let zone = null;
  try { zone = Intl.DateTimeFormat().resolvedOptions().timeZone || null; } catch (e) {}
  return {
    "User Agent": v(navigator.userAgent),
    "Platform": v(navigator.platform),
    "OS CPU": v(navigator.oscpu),
    "Language": v(navigator.language),
    "Languages": navigator.languages ? Array.from(navigator.languages) : null,
    "Time Zone": zone,
    "CPU Core Count": v(navigator.hardwareConcurrency),
    "Device Memory": v(navigator.deviceMemory),
    "Build Number": v(navigator.productSub),
    "Navigator Vendor": v(navigator.vendor),
    "Navigator Properties": props,
    "Cookies Enabled": v(navigator.cookieEnabled),
    "PDF Viewer": v(navigator.pdfViewerEnabled),
    "Do Not Track": navigator.doNotTrack == null ? null : navigator.doNotTrack === "1",
    "CPU Class": v(navigator.cpuClass),
    "Global Storage": "globalStorage" in window ? !!window.globalStorage : null,
  };
})()`

const screenScript = `(() => ({
  "Screen Width": screen.width,
  "Screen Height": screen.height,
  "Usable Screen Width": screen.availWidth,
  "Usable Screen Height": screen.availHeight,
  "Color Depth": screen.colorDepth,
  "Touch Screen": ("ontouchstart" in window) || navigator.maxTouchPoints > 0,
}))()`

const webglScript = `(() => {
  const canvas = document.createElement("canvas");
  const gl = canvas.getContext("webgl") || canvas.getContext("experimental-webgl");
  if (!gl) {
    return {
      "WebGL Version": null,
      "WebGL Vendor": null,
      "WebGL Renderer": null,
      "WebGL Unmasked Vendor": null,
      "WebGL Unmasked Renderer": null,
      "Shading Language Version": null,
    };
  }
  const info = gl.getExtension("WEBGL_debug_renderer_info");
  return {
    "WebGL Version": gl.getParameter(gl.VERSION),
    "WebGL Vendor": gl.getParameter(gl.VENDOR),
    "WebGL Renderer": gl.getParameter(gl.RENDERER),
    "WebGL Unmasked Vendor": info ? gl.getParameter(info.UNMASKED_VENDOR_WEBGL) : null,
    "WebGL Unmasked Renderer": info ? gl.getParameter(info.UNMASKED_RENDERER_WEBGL) : null,
    "Shading Language Version": gl.getParameter(gl.SHADING_LANGUAGE_VERSION),
  };
})()`

const storageScript = `(async () => {
  let quota = null;
  if (navigator.storage && navigator.storage.estimate) {
    const q = (await navigator.storage.estimate()).quota;
    if (q !== undefined) quota = Math.round(q / 1000 / 1000 / 1000);
  }
  return {
    "IndexedDB": !!window.indexedDB,
    "Open Database": !!window.openDatabase,
    "Local Storage": !!window.localStorage,
    "Session Storage": !!window.sessionStorage,
    "Available Browser Storage": quota,
  };
})()`

// The level and charging times change from minute to minute, so only the
// presence of the API is reported.
const batteryScript = `(async () => {
  if (!("getBattery" in navigator)) return {"Battery API": null};
  try { await navigator.getBattery(); return {"Battery API": true}; }
  catch (e) { return {"Battery API": false}; }
})()`

const connectionScript = `(() => {
  const c = navigator.connection;
  return {
    "Connection Type": c && c.type ? c.type : null,
    "Effective Connection Type": c && c.effectiveType ? c.effectiveType : null,
  };
})()`

const pluginsScript = `(() => {
  if (!navigator.plugins) return {"Plugins": null, "Plugin Count": null};
  const plugins = {};
  for (let i = 0; i < navigator.plugins.length; i++) {
    plugins[navigator.plugins[i].name] = navigator.plugins[i].filename;
  }
  return {"Plugins": plugins, "Plugin Count": navigator.plugins.length};
})()`

// Device ids and labels are per-origin and permission dependent, so only the
// kinds are returned.
const mediaScript = `(async () => {
  if (!navigator.mediaDevices || !navigator.mediaDevices.enumerateDevices) {
    return {"Media Devices": null};
  }
  const devices = await navigator.mediaDevices.enumerateDevices();
  return {"Media Devices": devices.map((d) => d.kind || "unknown")};
})()`

const canvasScript = `(() => {
  const text = document.createElement("canvas");
  text.width = 240;
  text.height = 60;
  let ctx = text.getContext("2d");
  if (!ctx) return {"Text Canvas": null, "Geometry Canvas": null};
  const txt = "juoqgcsx@$?! 01235689";
  ctx.textBaseline = "alphabetic";
  ctx.font = "14px 'Times New Roman'";
  ctx.fillStyle = "#f60";
  ctx.fillRect(100, 1, 62, 20);
  ctx.fillStyle = "#069";
  ctx.fillText(txt, 2, 15);
  ctx.fillStyle = "rgba(102, 204, 0, 0.7)";
  ctx.fillText(txt, 4, 17);
  ctx.font = "18px 'Times New Roman'";
  ctx.fillText(String.fromCharCode(55357, 56835), 200, 30);

  const geom = document.createElement("canvas");
  geom.width = 120;
  geom.height = 120;
  ctx = geom.getContext("2d");
  ctx.globalCompositeOperation = "multiply";
  for (const [color, x, y] of [["#f0f", 40, 40], ["#0ff", 80, 40], ["#ff0", 60, 80]]) {
    ctx.fillStyle = color;
    ctx.beginPath();
    ctx.arc(x, y, 40, 0, Math.PI * 2, true);
    ctx.closePath();
    ctx.fill();
  }
  ctx.fillStyle = "#f9c";
  ctx.arc(60, 60, 60, 0, Math.PI * 2, true);
  ctx.arc(60, 60, 20, 0, Math.PI * 2, true);
  ctx.fill("evenodd");

  return {"Text Canvas": text.toDataURL(), "Geometry Canvas": geom.toDataURL()};
})()`

const audioScript = `(async () => {
  const Ctx = window.OfflineAudioContext || window.webkitOfflineAudioContext;
  if (typeof Ctx !== "function") return {"Audio": null};
  const audio = new Ctx(1, 4000, 44000);
  const osc = audio.createOscillator();
  osc.type = "sine";
  osc.frequency.setValueAtTime(500, audio.currentTime);
  const comp = audio.createDynamicsCompressor();
  comp.threshold.value = -50;
  comp.knee.value = 35;
  comp.ratio.value = 15;
  comp.attack.value = 0;
  comp.release.value = 0.2;
  osc.connect(comp);
  comp.connect(audio.destination);
  osc.start(0);
  const buffer = await new Promise((resolve, reject) => {
    audio.oncomplete = (e) => resolve(e.renderedBuffer);
    try { audio.startRendering(); } catch (e) { reject(e); }
  });
  const samples = buffer.getChannelData(0);
  let sum = 0;
  for (let i = 3000; i < 3500; i++) sum += Math.abs(samples[i]);
  return {"Audio": sum};
})()`

// fontsScript measures a test string in each candidate font against the
// generic fallbacks. A font is present when any measurement differs.
var fontsScript = buildFontsScript(CommonFonts)

func buildFontsScript(fonts []string) string {
	list, err := json.Marshal(fonts)
	if err != nil {
		panic(fmt.Sprintf("font list is not JSON encodable: %v", err))
	}
	return fmt.Sprintf(`(() => {
  const fonts = %s;
  const bases = ["monospace", "sans-serif", "serif"];
  const span = document.createElement("span");
  span.style.fontSize = "72px";
  span.style.position = "absolute";
  span.style.visibility = "hidden";
  span.textContent = "mmmmmmmmmmlli";
  const body = document.body;
  const base = {};
  for (const b of bases) {
    span.style.fontFamily = b;
    body.appendChild(span);
    base[b] = [span.offsetWidth, span.offsetHeight];
    body.removeChild(span);
  }
  const found = [];
  for (const f of fonts) {
    let detected = false;
    for (const b of bases) {
      span.style.fontFamily = "'" + f + "'," + b;
      body.appendChild(span);
      if (span.offsetWidth !== base[b][0] || span.offsetHeight !== base[b][1]) detected = true;
      body.removeChild(span);
    }
    if (detected) found.push(f);
  }
  return {"Fonts": found};
})()`, list)
}

// adBlockScript inserts a bait element with ad-like identifiers and reports
// whether a content blocker hid or removed it.
const adBlockScript = `(async () => {
  if (!document.body) return {"AdBlock": null};
  const bait = document.createElement("div");
  bait.id = "ads";
  bait.className = "adsbox ad-banner textads";
  bait.style.position = "absolute";
  bait.style.height = "10px";
  bait.innerHTML = "&nbsp;";
  document.body.appendChild(bait);
  await new Promise((resolve) => setTimeout(resolve, 100));
  const blocked = !document.getElementById("ads") || bait.offsetHeight === 0 ||
    getComputedStyle(bait).display === "none";
  if (bait.parentNode) bait.parentNode.removeChild(bait);
  return {"AdBlock": blocked};
})()`

// permissionsScript queries every name in the list through the Permissions
// API and returns the granted ones. Names the browser rejects are skipped.
var permissionsScript = buildPermissionsScript(Permissions)

func buildPermissionsScript(names []string) string {
	list, err := json.Marshal(names)
	if err != nil {
		panic(fmt.Sprintf("permission list is not JSON encodable: %v", err))
	}
	return fmt.Sprintf(`(async () => {
  if (!navigator.permissions || !navigator.permissions.query) return {"Browser Permissions": null};
  const names = %s;
  const granted = await Promise.all(names.map(async (name) => {
    try {
      const status = await navigator.permissions.query({name});
      return status.state === "granted" ? name : null;
    } catch (e) {
      return null;
    }
  }));
  return {"Browser Permissions": granted.filter(Boolean)};
})()`, list)
}

// Permissions are the permission names checked by the permissions probe.
var Permissions = []string{
	"accelerometer", "accessibility-events", "ambient-light-sensor", "background-sync",
	"camera", "clipboard-read", "clipboard-write", "geolocation", "gyroscope", "local-fonts",
	"magnetometer", "microphone", "midi", "notifications", "payment-handler",
	"persistent-storage", "push", "storage-access", "top-level-storage-access", "window-management",
}

// CommonFonts are the font families checked by the fonts probe.
var CommonFonts = []string{
	"American Typewriter", "Andale Mono", "Arial Black", "Arial Hebrew", "Arial Narrow",
	"Arial Rounded MT Bold", "Arial Unicode MS", "Arial", "Avenir Next Condensed", "Avenir Next",
	"Avenir", "Bahnschrift", "Baskerville", "Big Caslon", "Bodoni 72 Oldstyle", "Bodoni 72 Smallcaps",
	"Bodoni 72", "Bradley Hand", "Brush Script MT", "Calibri", "Cambria Math", "Cambria", "Candara",
	"Chalkboard SE", "Chalkboard", "Chalkduster", "Charter", "Cochin", "Comic Sans MS", "Consolas",
	"Constantia", "Copperplate", "Corbel", "Courier New", "Courier", "DIN Alternate", "DIN Condensed",
	"Didot", "Ebrima", "Franklin Gothic Medium", "Futura", "Gabriola", "Gadugi", "Geneva", "Georgia",
	"Gill Sans", "Helvetica Neue", "Helvetica", "Herculanum", "Hoefler Text", "HoloLens MDL2 Assets",
	"Impact", "Ink Free", "Javanese Text", "LUCIDA GRANDE", "Leelawadee UI", "Lucida Console",
	"Lucida Grande", "Lucida Sans Unicode", "Luminari", "MS Gothic", "MV Boli", "Malgun Gothic",
	"Marker Felt", "Marlett", "Menlo", "Microsoft Himalaya", "Microsoft JhengHei", "Microsoft New Tai Lue",
	"Microsoft PhagsPa", "Microsoft Sans Serif", "Microsoft Tai Le", "Microsoft YaHei", "Microsoft Yi Baiti",
	"MingLiU-ExtB", "Monaco", "Mongolian Baiti", "Myanmar Text", "Nirmala UI", "Noteworthy", "Optima",
	"Palatino Linotype", "Palatino", "Papyrus", "Phosphate", "Rockwell", "Savoye LET", "Segoe MDL2 Assets",
	"Segoe Print", "Segoe Script", "Segoe UI Emoji", "Segoe UI Historic", "Segoe UI Symbol", "Segoe UI",
	"SignPainter", "SimSun", "Sitka", "Skia", "Snell Roundhand", "Sylfaen", "Symbol", "Tahoma",
	"Times New Roman", "Times", "Trattatello", "Trebuchet MS", "Verdana", "Webdings", "Wingdings 2",
	"Wingdings 3", "Wingdings", "Yu Gothic", "Zapfino",
}
