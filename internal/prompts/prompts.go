// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package prompts holds the text templates sent to the LLM by each stage of
// the essay pipeline.
package prompts

import (
	"bytes"
	"strings"
	"text/template"
)

var planTmpl = template.Must(template.New("plan").Parse(`You are an expert writer tasked with writing a high level outline of an essay. Write an outline for the user provided topic. Give an outline of the essay along with any relevant notes or instructions for the sections.

Topic:
{{.Task}}
`))

var researchPlanTmpl = template.Must(template.New("research_plan").Parse(`You are a researcher charged with providing information that can be used when writing the following essay. Generate a list of search queries that will gather any relevant information. Only generate {{.MaxQueries}} queries max.

Respond with a JSON object of the form {"queries": ["first query", "second query"]}. Do not include any text outside the JSON object.

Essay topic:
{{.Task}}
`))

var writeTmpl = template.Must(template.New("write").Parse(`You are an essay assistant tasked with writing excellent 5-paragraph essays. Generate the best essay possible for the user's request and the initial outline. {{if .Critique}}The user has critiqued your previous attempt; respond with a revised version of that attempt.{{end}}Utilize all the information below as needed:

------

{{.Content}}

------

Outline:
{{.Plan}}

Request:
{{.Task}}
{{- if .Critique}}

Critique of the previous attempt:
{{.Critique}}
{{- end}}
`))

var reflectTmpl = template.Must(template.New("reflect").Parse(`You are a teacher grading an essay submission. Generate critique and recommendations for the user's submission. Provide detailed recommendations, including requests for length, depth, style, etc.

Submission:
{{.Draft}}
`))

var researchCritiqueTmpl = template.Must(template.New("research_critique").Parse(`You are a researcher charged with providing information that can be used when making any requested revisions (as outlined below). Generate a list of search queries that will gather any relevant information. Only generate {{.MaxQueries}} queries max.

Respond with a JSON object of the form {"queries": ["first query", "second query"]}. Do not include any text outside the JSON object.

Requested revisions:
{{.Critique}}
`))

// ContentSeparator joins research snippets in the write prompt.
const ContentSeparator = "\n\n"

// Plan renders the outline prompt for task.
func Plan(task string) (string, error) {
	return render(planTmpl, struct{ Task string }{task})
}

// ResearchPlan renders the query-generation prompt conditioned on task.
func ResearchPlan(task string, maxQueries int) (string, error) {
	return render(researchPlanTmpl, struct {
		Task       string
		MaxQueries int
	}{task, maxQueries})
}

// Write renders the drafting prompt. critique may be empty on the first pass.
func Write(task, plan string, content []string, critique string) (string, error) {
	return render(writeTmpl, struct {
		Task, Plan, Content, Critique string
	}{
		Task:     task,
		Plan:     plan,
		Content:  strings.Join(content, ContentSeparator),
		Critique: critique,
	})
}

// Reflect renders the critique prompt for draft.
func Reflect(draft string) (string, error) {
	return render(reflectTmpl, struct{ Draft string }{draft})
}

// ResearchCritique renders the query-generation prompt conditioned on critique.
func ResearchCritique(critique string, maxQueries int) (string, error) {
	return render(researchCritiqueTmpl, struct {
		Critique   string
		MaxQueries int
	}{critique, maxQueries})
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
