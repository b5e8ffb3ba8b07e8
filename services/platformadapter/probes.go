package platformadapter

import "github.com/metacogma/meetcapture/models/platform"

// CaptionProbeJS returns the DOM evaluation string the caption scraper runs
// every tick for a given platform, aggregating whatever structural classes,
// data-tid attributes, or ARIA live regions that platform renders live
// captions into. Each returns a JSON array of {speaker, text} objects.
func CaptionProbeJS(p platform.Platform) string {
	switch p {
	case platform.Zoom:
		return zoomCaptionProbeJS
	case platform.GoogleMeet:
		return meetCaptionProbeJS
	case platform.Teams:
		return teamsCaptionProbeJS
	case platform.Webex:
		return webexCaptionProbeJS
	default:
		return genericCaptionProbeJS
	}
}

const genericCaptionProbeJS = `
(() => {
  const out = [];
  document.querySelectorAll('[aria-live], [role="log"]').forEach(el => {
    const text = (el.innerText || '').trim();
    if (text) out.push({speaker: '', text});
  });
  return out;
})()`

const meetCaptionProbeJS = `
(() => {
  const out = [];
  document.querySelectorAll('.iOzk7, [jsname="dsyhDe"]').forEach(el => {
    const text = (el.innerText || '').trim();
    if (text) out.push({speaker: '', text});
  });
  return out;
})()`

const zoomCaptionProbeJS = `
(() => {
  const out = [];
  document.querySelectorAll('.closed-caption-view__content, .live-transcription-subtitle__message').forEach(el => {
    const text = (el.innerText || '').trim();
    if (text) out.push({speaker: '', text});
  });
  return out;
})()`

const teamsCaptionProbeJS = `
(() => {
  const out = [];
  document.querySelectorAll('[data-tid="closed-caption-text"]').forEach(el => {
    const speakerEl = el.closest('[data-tid="closed-caption-item"]');
    const speaker = speakerEl ? (speakerEl.querySelector('[data-tid="author"]')||{}).innerText || '' : '';
    const text = (el.innerText || '').trim();
    if (text) out.push({speaker, text});
  });
  return out;
})()`

const webexCaptionProbeJS = `
(() => {
  const out = [];
  document.querySelectorAll('.closed-caption-item, [class*="caption"]').forEach(el => {
    const text = (el.innerText || '').trim();
    if (text) out.push({speaker: '', text});
  });
  return out;
})()`
