package models

import "testing"

func TestSplitInstance(t *testing.T) {
	tests := []struct {
		id       string
		wantBase string
		wantN    int
		wantOK   bool
	}{
		{"aws_instance.web", "aws_instance.web", 0, false},
		{"aws_instance.web~1", "aws_instance.web", 1, true},
		{"aws_instance.web~12", "aws_instance.web", 12, true},
		{"aws_instance.web~0", "aws_instance.web~0", 0, false},
		{"aws_instance.web~abc", "aws_instance.web~abc", 0, false},
		{"module.app.aws_instance.web~3", "module.app.aws_instance.web", 3, true},
	}
	for _, tt := range tests {
		base, n, ok := SplitInstance(tt.id)
		if base != tt.wantBase || n != tt.wantN || ok != tt.wantOK {
			t.Errorf("SplitInstance(%q) = (%q, %d, %v), want (%q, %d, %v)",
				tt.id, base, n, ok, tt.wantBase, tt.wantN, tt.wantOK)
		}
	}
}

func TestModulePath(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{"aws_instance.web", ""},
		{"module.app.aws_instance.web", "module.app."},
		{"module.app.module.db.aws_db_instance.main", "module.app.module.db."},
	}
	for _, tt := range tests {
		if got := ModulePath(tt.id); got != tt.want {
			t.Errorf("ModulePath(%q) = %q, want %q", tt.id, got, tt.want)
		}
	}
}

func TestResourceTypeAndLocalName(t *testing.T) {
	tests := []struct {
		id        string
		wantType  string
		wantLocal string
	}{
		{"aws_instance.web", "aws_instance", "web"},
		{"aws_instance.web~2", "aws_instance", "web"},
		{"module.app.aws_subnet.private", "aws_subnet", "private"},
		{"aws_api_gateway_method.get_item", "aws_api_gateway_method", "get_item"},
	}
	for _, tt := range tests {
		if got := ResourceType(tt.id); got != tt.wantType {
			t.Errorf("ResourceType(%q) = %q, want %q", tt.id, got, tt.wantType)
		}
		if got := LocalName(tt.id); got != tt.wantLocal {
			t.Errorf("LocalName(%q) = %q, want %q", tt.id, got, tt.wantLocal)
		}
	}
}

func TestWithResourceType(t *testing.T) {
	tests := []struct {
		id      string
		newType string
		want    string
	}{
		{"aws_ecs_service.app", "aws_fargate_service", "aws_fargate_service.app"},
		{"module.app.aws_ecs_service.app~2", "aws_fargate_service", "module.app.aws_fargate_service.app~2"},
	}
	for _, tt := range tests {
		if got := WithResourceType(tt.id, tt.newType); got != tt.want {
			t.Errorf("WithResourceType(%q, %q) = %q, want %q", tt.id, tt.newType, got, tt.want)
		}
	}
}

func TestWarningsAdd(t *testing.T) {
	var ws Warnings
	ws.Add(WarnUnresolvedReference, "aws_instance.web", "no binding for %s", "var.zone")
	ws.Add(WarnHandlerStep, "", "handler panicked")

	if len(ws) != 2 {
		t.Fatalf("len(ws) = %d, want 2", len(ws))
	}
	if ws[0].Node != "aws_instance.web" || ws[0].Kind != WarnUnresolvedReference {
		t.Errorf("unexpected first warning: %+v", ws[0])
	}
	if ws[1].String() != "handler_step: handler panicked" {
		t.Errorf("String() = %q", ws[1].String())
	}
}
