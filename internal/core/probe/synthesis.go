package probe

import "fmt"

// SynthesizeMode recommends an operating mode based on gathered evidence
func SynthesizeMode(es *EvidenceSet) (Mode, float64, []string) {
	var reasons []string

	// Start with highest capability assumption
	canSpatial := true
	canWrite := true
	spatialConfidence := 0.85
	basicConfidence := 0.80

	// === Server Version ===
	version, _, hasVersion := es.BestValue(CategoryServer, "version")
	if hasVersion {
		reasons = append(reasons, fmt.Sprintf("PostgreSQL %v", version))
	} else {
		spatialConfidence -= 0.1
		reasons = append(reasons, "Could not determine server version")
	}

	// === Writability ===
	readOnly, _, _ := es.BestValue(CategoryPrivilege, "read_only")
	if readOnly != nil && readOnly.(bool) {
		canWrite = false
		reasons = append(reasons, "Server enforces read-only transactions - writes unavailable")
	}

	// === PostGIS ===
	hasPostGIS, gisConf, _ := es.BestValue(CategoryExtension, "has_postgis")
	if hasPostGIS != nil && hasPostGIS.(bool) {
		if v, _, ok := es.BestValue(CategoryExtension, "postgis_version"); ok {
			reasons = append(reasons, fmt.Sprintf("PostGIS %v installed", v))
		} else {
			reasons = append(reasons, "PostGIS installed")
		}
	} else {
		canSpatial = false
		reasons = append(reasons, "postgis not installed - spatial mode requires postgis")
	}

	// === CREATE Privilege ===
	canCreate, _, _ := es.BestValue(CategoryPrivilege, "can_create")
	if canCreate != nil && canCreate.(bool) {
		reasons = append(reasons, "CREATE privilege on current database")
	} else {
		basicConfidence -= 0.1
		reasons = append(reasons, "No CREATE privilege - schema management limited")
	}

	// === CREATEDB Role ===
	canCreateDB, _, _ := es.BestValue(CategoryPrivilege, "can_create_db")
	if canCreateDB != nil && canCreateDB.(bool) {
		reasons = append(reasons, "Role may create databases")
	}

	// === Counter Schema ===
	if has, _, ok := es.BestValue(CategorySchema, "has_counters"); ok && has.(bool) {
		reasons = append(reasons, "Counter schema already present")
	}

	// === Determine Final Recommendation ===
	if !canWrite {
		return ModeReadOnly, 0.90, reasons
	}

	if canSpatial {
		// Factor in extension confidence
		if gisConf > 0 {
			spatialConfidence = (spatialConfidence + gisConf) / 2
		}
		// Cap at 0.95
		if spatialConfidence > 0.95 {
			spatialConfidence = 0.95
		}
		return ModeSpatial, spatialConfidence, reasons
	}

	return ModeBasic, basicConfidence, reasons
}

// SynthesisResult contains the full synthesis output
type SynthesisResult struct {
	Mode       Mode
	Confidence float64
	Reasons    []string
	Warnings   []string
}

// FullSynthesis performs complete mode synthesis with warnings
func FullSynthesis(es *EvidenceSet) SynthesisResult {
	mode, confidence, reasons := SynthesizeMode(es)

	result := SynthesisResult{
		Mode:       mode,
		Confidence: confidence,
		Reasons:    reasons,
	}

	if mode == ModeReadOnly {
		result.Warnings = append(result.Warnings,
			"All write operations will be rejected by the server")
	}
	if mode.Level() < ModeSpatial.Level() {
		result.Warnings = append(result.Warnings,
			"Geometry columns will fail until postgis is installed")
	}
	if canCreate, _, ok := es.BestValue(CategoryPrivilege, "can_create"); ok && !canCreate.(bool) {
		result.Warnings = append(result.Warnings,
			"Layer table creation needs CREATE privilege on the database")
	}

	return result
}
