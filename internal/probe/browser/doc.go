// Package browser provides probes that observe a real browser through the
// Chrome DevTools Protocol.
//
// A Session starts a headless Chrome with chromedp and a loopback HTTP
// server that serves a blank probe page. Every probe opens its own tab,
// loads the page and evaluates one script whose JSON result is converted
// into signals. The headers probe instead reads the request headers the
// page server observed for its tab.
//
// Probes depend only on the Page interface, so their decoding can be
// exercised without a browser.
package browser
