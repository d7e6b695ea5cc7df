package detect

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sandevgo/formpilot/internal/core"
)

// fillable input types. Everything else (submit, button, hidden, file, ...)
// is skipped.
var fillableTypes = map[string]bool{
	"text":     true,
	"email":    true,
	"tel":      true,
	"url":      true,
	"password": true,
	"number":   true,
	"date":     true,
	"search":   true,
	"radio":    true,
	"checkbox": true,
}

// ContextExtractor derives page-level metadata from the parsed snapshot.
type ContextExtractor interface {
	Extract(doc *goquery.Document, pageURL string) core.WebsiteContext
}

// Detector scans a page snapshot for fillable fields. It is a read-only
// pass: opids are unique within the pass and not stable across reloads.
type Detector struct {
	siteCtx ContextExtractor
}

func NewDetector(siteCtx ContextExtractor) *Detector {
	return &Detector{siteCtx: siteCtx}
}

// DetectForms never lets a parse problem escape as a panic or error; the
// failure shape is part of the contract.
func (d *Detector) DetectForms(pageHTML, pageURL string) (result core.DetectFormsResult) {
	defer func() {
		if r := recover(); r != nil {
			result = core.DetectFormsResult{Success: false, Error: fmt.Sprintf("detection failed: %v", r)}
		}
	}()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return core.DetectFormsResult{Success: false, Error: fmt.Sprintf("parse page: %v", err)}
	}

	pass := &detectionPass{doc: doc}

	var forms []core.DetectedForm
	doc.Find("form").Each(func(_ int, formSel *goquery.Selection) {
		form := pass.scanForm(formSel)
		if len(form.Fields) > 0 {
			forms = append(forms, form)
		}
	})

	// Fields outside any <form> still matter: plenty of SPAs never render
	// a form element.
	orphans := pass.scanFields(doc.Selection, "__form__implicit", func(s *goquery.Selection) bool {
		return s.Closest("form").Length() > 0
	})
	if len(orphans) > 0 {
		forms = append(forms, core.DetectedForm{
			Opid:   "__form__implicit",
			Fields: orphans,
		})
	}

	total := 0
	for _, f := range forms {
		total += len(f.Fields)
	}

	var siteCtx *core.WebsiteContext
	if d.siteCtx != nil {
		ctx := d.siteCtx.Extract(doc, pageURL)
		siteCtx = &ctx
	}

	return core.DetectFormsResult{
		Success:        true,
		Forms:          forms,
		TotalFields:    total,
		WebsiteContext: siteCtx,
	}
}

type detectionPass struct {
	doc        *goquery.Document
	formCount  int
	fieldCount int
	seenRadios map[string]bool
}

func (p *detectionPass) scanForm(formSel *goquery.Selection) core.DetectedForm {
	opid := fmt.Sprintf("__form__%d", p.formCount)
	p.formCount++

	form := core.DetectedForm{
		Opid:   opid,
		Name:   formSel.AttrOr("name", formSel.AttrOr("id", "")),
		Action: formSel.AttrOr("action", ""),
		Method: strings.ToUpper(formSel.AttrOr("method", "")),
	}
	form.Fields = p.scanFields(formSel, opid, nil)
	return form
}

// scanFields collects fillable elements under root. skip filters out
// elements owned by another scope (used for the implicit form).
func (p *detectionPass) scanFields(root *goquery.Selection, formOpid string, skip func(*goquery.Selection) bool) []core.DetectedField {
	var fields []core.DetectedField

	root.Find("input, textarea, select").Each(func(_ int, s *goquery.Selection) {
		if skip != nil && skip(s) {
			return
		}
		field, ok := p.scanField(s, formOpid)
		if !ok {
			return
		}
		fields = append(fields, field)
	})
	return fields
}

func (p *detectionPass) scanField(s *goquery.Selection, formOpid string) (core.DetectedField, bool) {
	tag := goquery.NodeName(s)

	fieldType := tag
	if tag == "input" {
		fieldType = strings.ToLower(s.AttrOr("type", "text"))
		if fieldType == "" {
			fieldType = "text"
		}
		if !fillableTypes[fieldType] {
			return core.DetectedField{}, false
		}
	}

	if _, disabled := s.Attr("disabled"); disabled {
		return core.DetectedField{}, false
	}
	if hiddenByStyle(s) {
		return core.DetectedField{}, false
	}

	// A radio group is one question; only its first member becomes a field.
	if fieldType == "radio" {
		groupKey := formOpid + "/" + s.AttrOr("name", "")
		if p.seenRadios == nil {
			p.seenRadios = make(map[string]bool)
		}
		if p.seenRadios[groupKey] {
			return core.DetectedField{}, false
		}
		p.seenRadios[groupKey] = true
	}

	label, labelSource := resolveLabel(p.doc, s)
	name := s.AttrOr("name", "")
	id := s.AttrOr("id", "")
	placeholder := s.AttrOr("placeholder", "")

	_, required := s.Attr("required")
	_, readonly := s.Attr("readonly")

	field := core.DetectedField{
		Opid:     fmt.Sprintf("__field__%d", p.fieldCount),
		Selector: buildSelector(s),
		FormOpid: formOpid,
		Metadata: core.FieldMetadata{
			Label:       label,
			LabelSource: labelSource,
			Placeholder: placeholder,
			Type:        fieldType,
			Purpose:     classifyPurpose(fieldType, name, id, label, placeholder),
			Rect:        parseRect(s.AttrOr("data-op-rect", "")),
			Value:       fieldValue(s, tag),
			Required:    required,
			ReadOnly:    readonly,
			Options:     fieldOptions(s, tag, fieldType, name),
		},
	}
	p.fieldCount++
	return field, true
}

func fieldValue(s *goquery.Selection, tag string) string {
	if tag == "textarea" {
		return strings.TrimSpace(s.Text())
	}
	return s.AttrOr("value", "")
}

func fieldOptions(s *goquery.Selection, tag, fieldType, name string) []string {
	switch {
	case tag == "select":
		var options []string
		s.Find("option").Each(func(_ int, opt *goquery.Selection) {
			if text := strings.TrimSpace(opt.Text()); text != "" {
				options = append(options, text)
			}
		})
		return options
	case fieldType == "radio" && name != "":
		var options []string
		scope := s.Closest("form")
		if scope.Length() == 0 {
			scope = s.Parents().Last()
		}
		scope.Find(fmt.Sprintf(`input[type="radio"][name=%q]`, name)).Each(func(_ int, radio *goquery.Selection) {
			if v := radio.AttrOr("value", ""); v != "" {
				options = append(options, v)
			}
		})
		return options
	}
	return nil
}

func hiddenByStyle(s *goquery.Selection) bool {
	style := strings.ToLower(s.AttrOr("style", ""))
	if strings.Contains(style, "display:none") || strings.Contains(style, "display: none") ||
		strings.Contains(style, "visibility:hidden") || strings.Contains(style, "visibility: hidden") {
		return true
	}
	_, hidden := s.Attr("hidden")
	return hidden
}

// parseRect decodes the "x,y,w,h" layout hint the capture script stamps on
// elements. A server-side scan cannot compute layout itself.
func parseRect(raw string) core.Rect {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return core.Rect{}
	}
	nums := make([]float64, 4)
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return core.Rect{}
		}
		nums[i] = v
	}
	return core.Rect{X: nums[0], Y: nums[1], Width: nums[2], Height: nums[3]}
}
