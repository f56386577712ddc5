package api

const syncDocsHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>Sync Event Stream - viewsyncd</title>
  <style>
    *, *::before, *::after { box-sizing: border-box; }

    body {
      margin: 0;
      font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, "Helvetica Neue", sans-serif;
      font-size: 14px;
      line-height: 1.65;
      background: #0d1117;
      color: #c9d1d9;
      display: flex;
      flex-direction: column;
      min-height: 100vh;
    }

    a { color: #58a6ff; text-decoration: none; }
    a:hover { text-decoration: underline; }

    /* ── top nav ── */
    nav {
      background: #161b22;
      border-bottom: 1px solid #30363d;
      padding: 0 24px;
      height: 48px;
      display: flex;
      align-items: center;
      gap: 24px;
      flex-shrink: 0;
    }
    nav .brand {
      font-weight: 600;
      font-size: 15px;
      color: #e6edf3;
    }
    nav .sep { color: #484f58; }
    nav .current { color: #e6edf3; font-weight: 500; }
    nav .back { font-size: 13px; }

    /* ── layout ── */
    .layout {
      display: flex;
      flex: 1;
      max-width: 1100px;
      width: 100%;
      margin: 0 auto;
      padding: 0 16px;
    }

    /* ── sidebar ── */
    aside {
      width: 220px;
      flex-shrink: 0;
      padding: 32px 16px 32px 0;
      position: sticky;
      top: 0;
      height: calc(100vh - 48px);
      overflow-y: auto;
    }
    aside h4 {
      margin: 0 0 8px;
      font-size: 11px;
      font-weight: 600;
      text-transform: uppercase;
      letter-spacing: .08em;
      color: #8b949e;
    }
    aside ul {
      list-style: none;
      margin: 0 0 24px;
      padding: 0;
    }
    aside ul li a {
      display: block;
      padding: 4px 8px;
      border-radius: 4px;
      font-size: 13px;
      color: #8b949e;
    }
    aside ul li a:hover {
      background: #21262d;
      color: #c9d1d9;
      text-decoration: none;
    }

    /* ── main content ── */
    main {
      flex: 1;
      padding: 32px 0 64px 32px;
      border-left: 1px solid #21262d;
      min-width: 0;
    }

    h1 {
      margin: 0 0 8px;
      font-size: 28px;
      font-weight: 600;
      color: #e6edf3;
    }
    .subtitle {
      color: #8b949e;
      margin: 0 0 36px;
      font-size: 15px;
    }

    h2 {
      margin: 40px 0 12px;
      font-size: 18px;
      font-weight: 600;
      color: #e6edf3;
      padding-bottom: 8px;
      border-bottom: 1px solid #21262d;
    }
    h3 {
      margin: 28px 0 10px;
      font-size: 15px;
      font-weight: 600;
      color: #e6edf3;
    }

    p { margin: 0 0 12px; }

    /* ── method + path badge ── */
    .endpoint {
      display: inline-flex;
      align-items: center;
      gap: 10px;
      background: #161b22;
      border: 1px solid #30363d;
      border-radius: 6px;
      padding: 10px 16px;
      margin-bottom: 20px;
      font-family: "SFMono-Regular", Consolas, "Liberation Mono", Menlo, monospace;
      font-size: 14px;
    }
    .method {
      background: #1f6feb;
      color: #fff;
      font-weight: 700;
      font-size: 11px;
      padding: 2px 7px;
      border-radius: 4px;
      letter-spacing: .04em;
    }
    .path { color: #e6edf3; }

    /* ── tables ── */
    table {
      width: 100%;
      border-collapse: collapse;
      margin-bottom: 20px;
      font-size: 13px;
    }
    th {
      text-align: left;
      padding: 8px 12px;
      background: #161b22;
      color: #8b949e;
      font-weight: 600;
      border-bottom: 1px solid #30363d;
    }
    td {
      padding: 8px 12px;
      border-bottom: 1px solid #21262d;
      vertical-align: top;
    }
    tr:last-child td { border-bottom: none; }
    code {
      font-family: "SFMono-Regular", Consolas, "Liberation Mono", Menlo, monospace;
      font-size: 12px;
      background: #161b22;
      border: 1px solid #30363d;
      border-radius: 3px;
      padding: 1px 5px;
      color: #e6edf3;
    }

    /* ── code blocks ── */
    pre {
      background: #161b22;
      border: 1px solid #30363d;
      border-radius: 6px;
      padding: 16px;
      overflow-x: auto;
      margin: 0 0 20px;
    }
    pre code {
      background: none;
      border: none;
      padding: 0;
      font-size: 13px;
      line-height: 1.6;
      color: #c9d1d9;
    }

    /* ── callout ── */
    .callout {
      background: #161b22;
      border-left: 3px solid #1f6feb;
      border-radius: 0 6px 6px 0;
      padding: 12px 16px;
      margin-bottom: 20px;
      font-size: 13px;
    }
    .callout.warning { border-color: #d29922; }
    .callout strong { color: #e6edf3; }

    /* ── feed cards ── */
    .feed-card {
      background: #161b22;
      border: 1px solid #30363d;
      border-radius: 8px;
      padding: 16px 20px;
      margin-bottom: 14px;
    }
    .feed-card h3 { margin: 0 0 10px; font-size: 14px; }
    .feed-card code { font-size: 13px; }
    .feed-meta {
      display: flex;
      flex-wrap: wrap;
      gap: 8px;
      margin-bottom: 10px;
      font-size: 12px;
    }
    .feed-meta span { color: #8b949e; }
    .tag {
      background: #21262d;
      border: 1px solid #30363d;
      border-radius: 3px;
      padding: 1px 6px;
      font-family: "SFMono-Regular", Consolas, "Liberation Mono", Menlo, monospace;
      font-size: 11px;
      color: #8b949e;
    }

    /* ── SSE format visualization ── */
    .sse-block {
      background: #161b22;
      border: 1px solid #30363d;
      border-radius: 6px;
      padding: 16px;
      margin-bottom: 20px;
      font-family: "SFMono-Regular", Consolas, "Liberation Mono", Menlo, monospace;
      font-size: 13px;
      line-height: 1.8;
    }
    .sse-key { color: #79c0ff; }
    .sse-value { color: #a5d6ff; }
    .sse-comment { color: #484f58; }
  </style>
</head>
<body>

<nav>
  <span class="brand">viewsyncd</span>
  <span class="sep">/</span>
  <span class="current">Sync Event Stream</span>
  <a class="back" href="/docs">&larr; REST API Docs</a>
</nav>

<div class="layout">

  <aside>
    <h4>On this page</h4>
    <ul>
      <li><a href="#overview">Overview</a></li>
      <li><a href="#endpoint">Endpoint</a></li>
      <li><a href="#feeds">Feeds</a></li>
      <li><a href="#sse-format">SSE Event Format</a></li>
      <li><a href="#examples">Examples</a></li>
      <li><a href="#config">Feed Config File</a></li>
      <li><a href="#notes">Notes</a></li>
    </ul>
  </aside>

  <main>
    <h1>Sync Event Stream</h1>
    <p class="subtitle">Watch every message published on the sync bus via Server-Sent Events.</p>

    <h2 id="overview">Overview</h2>
    <p>
      Every pan, zoom, scroll and crosshair move that a viewport publishes is stamped with a
      sequence number and fanned out to the other viewports. The event stream mirrors that
      traffic to HTTP clients, after the viewports have been updated.
    </p>

    <h2 id="endpoint">Endpoint</h2>
    <div class="endpoint">
      <span class="method">GET</span>
      <span class="path">/api/v1/sync/events</span>
    </div>

    <h3>Query Parameters</h3>
    <table>
      <thead>
        <tr><th>Name</th><th>Type</th><th>Required</th><th>Description</th></tr>
      </thead>
      <tbody>
        <tr>
          <td><code>feeds</code></td>
          <td>string</td>
          <td>No</td>
          <td>
            Comma-separated list of feed names to receive. Omit to receive events from
            all feeds. Example: <code>?feeds=range_changed</code>
          </td>
        </tr>
        <tr>
          <td><code>last_event_id</code></td>
          <td>integer</td>
          <td>No</td>
          <td>
            Skip events whose id is not greater than this sequence number. The
            <code>Last-Event-ID</code> header takes precedence; EventSource sends it
            automatically when it reconnects.
          </td>
        </tr>
      </tbody>
    </table>

    <h3>Response Headers</h3>
    <table>
      <thead>
        <tr><th>Header</th><th>Value</th></tr>
      </thead>
      <tbody>
        <tr><td><code>Content-Type</code></td><td><code>text/event-stream</code></td></tr>
        <tr><td><code>Cache-Control</code></td><td><code>no-cache</code></td></tr>
        <tr><td><code>Connection</code></td><td><code>keep-alive</code></td></tr>
        <tr><td><code>X-Accel-Buffering</code></td><td><code>no</code> (disables nginx buffering)</td></tr>
      </tbody>
    </table>

    <h2 id="feeds">Feeds</h2>
    <p>Without a feed config file the service exposes one feed per message kind:</p>

    <div class="feed-card">
      <h3><code>range_changed</code></h3>
      <div class="feed-meta">
        <span>Kinds:</span> <span class="tag">range_changed</span>
      </div>
      <p>Visible logical range and right offset after a pan, zoom, wheel or scroll.</p>
    </div>

    <div class="feed-card">
      <h3><code>crosshair_moved</code></h3>
      <div class="feed-meta">
        <span>Kinds:</span> <span class="tag">crosshair_moved</span>
      </div>
      <p>Crosshair time and value. A <code>null</code> crosshair means it was cleared.</p>
    </div>

    <h2 id="sse-format">SSE Event Format</h2>
    <p>
      The <code>id</code> field is the bus sequence number and <code>event</code> is the feed name.
      A stream opens with a <code>retry: 2000</code> hint, and idle streams receive a
      <code>: keep-alive</code> comment every 15 seconds.
    </p>
    <div class="sse-block">
      <span class="sse-key">id:</span> <span class="sse-value">42</span><br>
      <span class="sse-key">event:</span> <span class="sse-value">range_changed</span><br>
      <span class="sse-key">data:</span> <span class="sse-value">{"kind":"range_changed","source_id":"left","seq":42,"range":{"from":390,"to":489}}</span><br>
      <br>
      <span class="sse-key">id:</span> <span class="sse-value">43</span><br>
      <span class="sse-key">event:</span> <span class="sse-value">crosshair_moved</span><br>
      <span class="sse-key">data:</span> <span class="sse-value">{"kind":"crosshair_moved","source_id":"right","seq":43,"crosshair":{"time":"2024-01-01T07:30:00Z","value":101.5}}</span><br>
      <br>
    </div>

    <h2 id="examples">Examples</h2>

    <h3>Browser: EventSource</h3>
    <pre><code>const sse = new EventSource('http://127.0.0.1:8190/api/v1/sync/events');

sse.addEventListener('range_changed', (e) => {
  const msg = JSON.parse(e.data);
  console.log(msg.seq, msg.source_id, msg.range.from, msg.range.to);
});</code></pre>

    <h3>curl</h3>
    <pre><code>curl -N http://127.0.0.1:8190/api/v1/sync/events
curl -N 'http://127.0.0.1:8190/api/v1/sync/events?feeds=crosshair_moved'</code></pre>

    <h2 id="config">Feed Config File</h2>
    <p>
      Set <code>VIEWSYNC_RELAY_FEEDS</code> to a YAML file to replace the default feeds.
      Each feed entry specifies:
    </p>
    <table>
      <thead>
        <tr><th>Field</th><th>Required</th><th>Description</th></tr>
      </thead>
      <tbody>
        <tr>
          <td><code>name</code></td>
          <td>Yes</td>
          <td>Feed identifier used as the SSE <code>event:</code> name and the <code>?feeds=</code> filter value.</td>
        </tr>
        <tr>
          <td><code>kinds</code></td>
          <td>No</td>
          <td><code>range_changed</code> and/or <code>crosshair_moved</code>. Omit to accept both.</td>
        </tr>
        <tr>
          <td><code>sources</code></td>
          <td>No</td>
          <td>Viewport ids whose publishes the feed carries. Omit to accept all.</td>
        </tr>
      </tbody>
    </table>

    <pre><code>feeds:
  - name: everything
  - name: left_ranges
    kinds: ["range_changed"]
    sources: ["left"]</code></pre>

    <h2 id="notes">Notes</h2>
    <ul>
      <li>
        <strong>Buffer &amp; back-pressure:</strong> each subscriber has a 256-event in-memory buffer.
        Slow clients have events dropped; the bus never waits for them.
      </li>
      <li>
        <strong>Reconnection:</strong> the stream does not replay missed events. Read
        <code>GET /api/v1/sync</code> after reconnecting for the latest range and crosshair.
      </li>
      <li>
        <strong>Authentication:</strong> the endpoint has no authentication. Bind
        the service to <code>127.0.0.1</code> (the default) to prevent external access.
      </li>
    </ul>

  </main>
</div>

</body>
</html>`
