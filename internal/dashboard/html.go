package dashboard

const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>igscrape</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body { font-family: 'Inter', -apple-system, system-ui, sans-serif; background: #0f172a; color: #e2e8f0; min-height: 100vh; }
        .header { background: linear-gradient(135deg, #1e293b, #334155); padding: 1.5rem 2rem; border-bottom: 1px solid #475569; display: flex; justify-content: space-between; align-items: center; }
        .header h1 { font-size: 1.5rem; color: #38bdf8; }
        .header .status { padding: 0.5rem 1rem; border-radius: 9999px; font-size: 0.875rem; font-weight: 600; }
        .status.running { background: #166534; color: #4ade80; }
        .status.interrupted { background: #991b1b; color: #fca5a5; }
        .status.finished, .status.idle { background: #854d0e; color: #fde047; }
        .grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(200px, 1fr)); gap: 1rem; padding: 2rem; }
        .card { background: #1e293b; border: 1px solid #334155; border-radius: 12px; padding: 1.25rem; }
        .card .label { font-size: 0.75rem; text-transform: uppercase; letter-spacing: 0.05em; color: #94a3b8; margin-bottom: 0.5rem; }
        .card .value { font-size: 1.75rem; font-weight: 700; color: #f1f5f9; }
        .card.success .value { color: #4ade80; }
        .card.warning .value { color: #fbbf24; }
        .card.error .value { color: #f87171; }
        table { width: calc(100% - 4rem); margin: 0 2rem 2rem; border-collapse: collapse; font-size: 0.875rem; }
        th, td { text-align: left; padding: 0.5rem 0.75rem; border-bottom: 1px solid #334155; }
        th { color: #94a3b8; font-weight: 600; text-transform: uppercase; font-size: 0.75rem; }
        td.failed { color: #f87171; }
        td.ok { color: #4ade80; }
        .footer { text-align: center; padding: 1rem; color: #475569; font-size: 0.75rem; }
    </style>
</head>
<body>
    <div class="header">
        <h1>igscrape</h1>
        <span class="status idle" id="status">idle</span>
    </div>
    <div class="grid">
        <div class="card"><div class="label">Pages Fetched</div><div class="value" id="pages_fetched">0</div></div>
        <div class="card"><div class="label">Cache Hits</div><div class="value" id="cache_hits">0</div></div>
        <div class="card success"><div class="label">Reports Saved</div><div class="value" id="reports_saved">0</div></div>
        <div class="card success"><div class="label">Documents</div><div class="value" id="documents_downloaded">0</div></div>
        <div class="card warning"><div class="label">Reports Invalid</div><div class="value" id="reports_invalid">0</div></div>
        <div class="card error"><div class="label">Fetch Errors</div><div class="value" id="fetch_errors">0</div></div>
        <div class="card error"><div class="label">Scrapers Failed</div><div class="value" id="scrapers_failed">0</div></div>
        <div class="card"><div class="label">Active Scrapers</div><div class="value" id="active_scrapers">0</div></div>
    </div>
    <table>
        <thead><tr><th>Inspector</th><th>State</th><th>Saved</th><th>Skipped</th><th>Errors</th><th>No date</th><th>Failure</th></tr></thead>
        <tbody id="inspectors"></tbody>
    </table>
    <div class="footer">Refreshes every 5s</div>
    <script>
        function cell(text, cls) { const td = document.createElement('td'); td.textContent = text; if (cls) td.className = cls; return td; }
        async function refresh() {
            try {
                const s = await (await fetch('/api/stats')).json();
                Object.keys(s).forEach(k => {
                    const el = document.getElementById(k);
                    if (el) el.textContent = Number(s[k]).toLocaleString();
                });
                const st = await (await fetch('/api/status')).json();
                const badge = document.getElementById('status');
                badge.textContent = st.state;
                badge.className = 'status ' + st.state;
                const body = document.getElementById('inspectors');
                body.replaceChildren(...st.inspectors.map(i => {
                    const tr = document.createElement('tr');
                    tr.append(cell(i.inspector), cell(i.state, i.state), cell(i.saved), cell(i.skipped), cell(i.errors), cell(i.no_date), cell((i.error || '').split('\n')[0]));
                    return tr;
                }));
            } catch (e) {}
        }
        setInterval(refresh, 5000);
        refresh();
    </script>
</body>
</html>`
