package analyst

import "strings"

// scriptHeader loads the staged CSV into df exactly as the generated code
// expects, and scriptFooter prints the result behind a marker so stray
// prints inside the generated code cannot be mistaken for it.
const scriptHeader = `import json
import pandas as pd
import plotly.express as px
import plotly.graph_objects as go

df = pd.read_csv("data.csv")
result = None

`

const scriptFooter = `

_fig = None
for _candidate in (globals().get("fig"), globals().get("chart"), result):
    if hasattr(_candidate, "write_html"):
        _fig = _candidate
        break
if _fig is not None:
    _fig.write_html("chart.html")

print("__RESULT__")
if result is not None:
    print(result)
`

// buildScript wraps generated analysis code with the data-loading header and
// the result/chart capture footer.
func buildScript(code string) string {
	return scriptHeader + strings.TrimSpace(code) + scriptFooter
}
