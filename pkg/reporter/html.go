package reporter

import (
	"fmt"
	"html/template"
	"io"
)

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>GKE VPA Recommendations - {{.GeneratedAt.Format "2006-01-02"}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Arial, sans-serif; background: #f5f7fa; color: #333; padding: 20px; }
        .container { max-width: 1400px; margin: 0 auto; background: white; border-radius: 8px; box-shadow: 0 2px 8px rgba(0, 0, 0, 0.1); }
        .header { background: linear-gradient(135deg, #326ce5 0%, #1a4d8f 100%); color: white; padding: 30px 40px; border-radius: 8px 8px 0 0; }
        .summary { display: flex; gap: 20px; padding: 20px 40px; }
        .card { flex: 1; background: #f8f9fa; border-radius: 6px; padding: 16px; }
        .card .value { font-size: 1.8em; font-weight: bold; color: #326ce5; }
        table { width: 100%; border-collapse: collapse; }
        th, td { padding: 8px 12px; border-bottom: 1px solid #e0e0e0; text-align: left; font-size: 0.9em; }
        th { background: #f1f3f4; }
        .section { padding: 20px 40px; }
        .hot { color: #d93025; font-weight: bold; }
    </style>
</head>
<body>
<div class="container">
    <div class="header">
        <h1>GKE VPA Recommendations</h1>
        <p><strong>Generated:</strong> {{.GeneratedAt.Format "January 2, 2006 15:04:05 MST"}}</p>
    </div>
    <div class="summary">
        <div class="card"><div>Containers</div><div class="value">{{.ContainerCount}}</div></div>
        <div class="card"><div>Without requests</div><div class="value">{{.UnsizedCount}}</div></div>
    </div>
    {{if .ControllerStats}}
    <div class="section">
        <h2>By controller type</h2>
        <table>
            <tr><th>Controller</th><th>Containers</th><th>Avg CPU util</th><th>Avg memory util</th><th>Max priority</th></tr>
            {{range .ControllerStats}}
            <tr><td>{{.ControllerType}}</td><td>{{.Containers}}</td><td>{{printf "%.2f" .AvgCPUUtilization}}</td><td>{{printf "%.2f" .AvgMemoryUtilization}}</td><td>{{printf "%.2f" .MaxPriority}}</td></tr>
            {{end}}
        </table>
    </div>
    {{end}}
    <div class="section">
        <h2>Recommendations</h2>
        <table>
            <tr>
                <th>Namespace</th><th>Controller</th><th>Container</th>
                <th>CPU request</th><th>CPU rec</th><th>CPU limit rec</th>
                <th>Memory request</th><th>Memory rec</th><th>Memory limit rec</th>
                <th>CPU util</th><th>Memory util</th><th>Priority</th>
            </tr>
            {{range .Recommendations}}
            <tr>
                <td>{{.Namespace}}</td><td>{{.ControllerType}}/{{.ControllerName}}</td><td>{{.ContainerName}}</td>
                <td>{{millicores .CPURequestedMCores}}</td><td>{{millicores .CPURequestedRecommendation}}</td><td>{{millicores .CPULimitRecommendation}}</td>
                <td>{{mebibytes .MemoryRequestedMiB}}</td><td>{{mebibytes .MemoryRequestedRecommendation}}</td><td>{{mebibytes .MemoryLimitRecommendation}}</td>
                <td>{{printf "%.2f" .CPURequestUtilization}}</td><td>{{printf "%.2f" .MemoryRequestUtilization}}</td>
                <td{{if gt .Priority 5.0}} class="hot"{{end}}>{{printf "%.2f" .Priority}}</td>
            </tr>
            {{end}}
        </table>
    </div>
</div>
</body>
</html>
`

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"millicores": millicores,
	"mebibytes":  mebibytes,
}).Parse(htmlTemplate))

// GenerateHTML creates an HTML report
func GenerateHTML(report *Report, writer io.Writer) error {
	if err := reportTemplate.Execute(writer, report); err != nil {
		return fmt.Errorf("failed to render HTML report: %w", err)
	}
	return nil
}
