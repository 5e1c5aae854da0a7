package email

const subjectHotLeadFmt = "HOT lead: %s (score %d)"
