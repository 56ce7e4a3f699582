package rodpage

const socketBinding = "__waeSocketSend"

// socketShim parks every outbound websocket frame and reports it to the Go side,
// which later releases or discards it. Frames go out directly if reporting fails.
const socketShim = `(() => {
  if (window.__waeSocketPatched) return;
  window.__waeSocketPatched = true;
  const original = WebSocket.prototype.send;
  const parked = new Map();
  let seq = 0;
  window.__waeRelease = (id) => {
    const p = parked.get(id);
    if (!p) return false;
    parked.delete(id);
    try { original.call(p.ws, p.data); } catch (e) { return false; }
    return true;
  };
  window.__waeDiscard = (id) => parked.delete(id);
  WebSocket.prototype.send = function (data) {
    const id = ++seq;
    const text = typeof data === 'string';
    parked.set(id, { ws: this, data });
    try {
      window.` + socketBinding + `(JSON.stringify({ seq: id, text: text ? data : '', binary: !text }));
    } catch (e) {
      parked.delete(id);
      original.call(this, data);
    }
  };
})();`

const releaseFrame = `(id) => window.__waeRelease && window.__waeRelease(id)`

const discardFrame = `(id) => window.__waeDiscard && window.__waeDiscard(id)`

const installObserver = `(id, selector) => {
  const root = document.querySelector(selector);
  if (!root) return false;
  window.__waeObservers = window.__waeObservers || {};
  const buf = [];
  const html = (n) => n.nodeType === 1 ? n.outerHTML : null;
  const obs = new MutationObserver((records) => {
    for (const r of records) {
      const added = Array.from(r.addedNodes, html).filter(Boolean);
      const removed = Array.from(r.removedNodes, html).filter(Boolean);
      if (added.length || removed.length) buf.push({ added, removed });
    }
  });
  obs.observe(root, { childList: true, subtree: true });
  window.__waeObservers[id] = { obs, buf };
  return true;
}`

const drainObserver = `(id) => {
  const o = window.__waeObservers && window.__waeObservers[id];
  if (!o) return null;
  return o.buf.splice(0);
}`

const removeObserver = `(id) => {
  const o = window.__waeObservers && window.__waeObservers[id];
  if (!o) return;
  o.obs.disconnect();
  delete window.__waeObservers[id];
}`

const setText = `function (text) {
  this.focus();
  this.textContent = text;
  this.dispatchEvent(new InputEvent('input', { bubbles: true }));
}`

const showToast = `(message, ms) => {
  const el = document.createElement('div');
  el.setAttribute('data-wae-toast', '');
  el.textContent = message;
  el.style.cssText = 'position:fixed;bottom:20px;right:20px;z-index:99999;padding:10px 16px;background:#00a884;color:#fff';
  document.body.appendChild(el);
  setTimeout(() => el.remove(), ms);
}`
