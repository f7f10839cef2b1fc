package extract

import "testing"

func TestValidEntityRejectsTooShortOrTooLong(t *testing.T) {
	v := NewValidator()
	if v.ValidEntity(Entity{Name: "a", Type: TypeConcept}) {
		t.Fatal("expected single-character name to be rejected")
	}
	long := make([]byte, maxNameLength+1)
	for i := range long {
		long[i] = 'a'
	}
	if v.ValidEntity(Entity{Name: string(long), Type: TypeConcept}) {
		t.Fatal("expected over-length name to be rejected")
	}
}

func TestValidEntityRejectsAllDigits(t *testing.T) {
	v := NewValidator()
	if v.ValidEntity(Entity{Name: "12345", Type: TypeConcept}) {
		t.Fatal("expected all-digit name to be rejected")
	}
}

func TestValidEntityRejectsAllCapsStopword(t *testing.T) {
	v := NewValidator()
	if v.ValidEntity(Entity{Name: "THE", Type: TypeConcept}) {
		t.Fatal("expected all-caps stopword to be rejected")
	}
	if !v.ValidEntity(Entity{Name: "AWS", Type: TypeTechnology}) {
		t.Fatal("expected non-stopword all-caps acronym to pass")
	}
}

func TestValidEntityRejectsCommonSingleWordConcept(t *testing.T) {
	v := NewValidator()
	if v.ValidEntity(Entity{Name: "thing", Type: TypeConcept}) {
		t.Fatal("expected generic single-word concept to be rejected")
	}
	if !v.ValidEntity(Entity{Name: "deployment pipeline", Type: TypeConcept}) {
		t.Fatal("expected multi-word concept to pass")
	}
}

func TestValidEntityAcceptsOrdinaryService(t *testing.T) {
	v := NewValidator()
	if !v.ValidEntity(Entity{Name: "billing-service", Type: TypeService}) {
		t.Fatal("expected ordinary service name to pass")
	}
}

func TestValidRelationshipRejectsSameEndpoint(t *testing.T) {
	v := NewValidator()
	a := Entity{Name: "billing-service", Type: TypeService}
	b := Entity{Name: "Billing-Service", Type: TypeService}
	if v.ValidRelationship(a, b) {
		t.Fatal("expected case-insensitively identical endpoints to be rejected")
	}
}

func TestValidRelationshipRequiresBothEndpointsValid(t *testing.T) {
	v := NewValidator()
	good := Entity{Name: "billing-service", Type: TypeService}
	bad := Entity{Name: "1", Type: TypeService}
	if v.ValidRelationship(good, bad) {
		t.Fatal("expected relationship with an invalid endpoint to be rejected")
	}
}
