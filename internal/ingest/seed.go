package ingest

// SeedDocuments returns a small set of sample documents for trying out
// the index and query flow on a fresh install.
func SeedDocuments() []Document {
	return []Document{
		{
			DocID: "admission_guide",
			Content: `Admission Process and Requirements

Our college follows a comprehensive admission process to ensure quality education for all students.

Application Process:
1. Online application submission through the college portal.
2. Upload required documents.
3. Pay the application fee of ₹500.
4. Appear for the entrance examination, if applicable.
5. Document verification.
6. Merit list publication.
7. Final admission confirmation.

Required Documents: 10th standard mark sheet and certificate, 12th standard mark sheet and certificate, transfer certificate from the previous institution, character certificate, caste certificate if applicable, income certificate for fee concession, four passport size photographs, and an Aadhar card copy.

Important Dates: applications open June 1st and close July 31st. The entrance exam is on August 15th, the merit list is published August 25th, and admissions must be confirmed by September 5th.

Eligibility: undergraduate programs require a minimum of 50 percent in 12th standard. Postgraduate programs require 55 percent in graduation. Diploma programs require 45 percent in 10th standard.`,
			Metadata: map[string]any{"type": "admission", "category": "process"},
		},
		{
			DocID: "fee_structure",
			Content: `Fee Structure 2024-25

Undergraduate Programs: Engineering ₹75,000 per year. Arts and Science ₹35,000 per year. Commerce ₹40,000 per year. Computer Applications ₹50,000 per year.

Postgraduate Programs: M.Tech ₹85,000 per year. MBA ₹90,000 per year. M.Sc ₹45,000 per year. M.Com ₹35,000 per year.

Additional Fees: admission fee ₹5,000 one time. Library fee ₹2,000 per year. Laboratory fee ₹3,000 per year. Sports fee ₹1,000 per year.

Hostel Fees: boys hostel ₹35,000 per year. Girls hostel ₹40,000 per year. Mess charges ₹25,000 per year.

Payment Schedule: 60 percent at admission, remaining 40 percent before December 31st.

Scholarships: merit scholarships up to 50 percent fee waiver, need-based scholarships up to 30 percent, sports scholarships up to 25 percent.`,
			Metadata: map[string]any{"type": "fees", "category": "structure"},
		},
		{
			Type: "faq",
			FAQData: []FAQEntry{
				{
					Question: "What are the college timings?",
					Answer:   "College timings are 8:00 AM to 5:00 PM on weekdays. Morning batch: 8:00 AM - 1:00 PM, Afternoon batch: 2:00 PM - 7:00 PM. Saturday classes are from 9:00 AM to 1:00 PM.",
					Category: "general",
				},
				{
					Question: "How can I contact the college?",
					Answer:   "You can contact us at: Phone: +91-XXX-XXX-XXXX, Email: info@college.edu. Office hours: Monday-Friday 9:00 AM - 5:00 PM.",
					Category: "contact",
				},
				{
					Question: "What documents are required for admission?",
					Answer:   "Required documents include: 10th & 12th mark sheets, transfer certificate, character certificate, caste certificate (if applicable), income certificate, passport photos, and Aadhar card copy.",
					Category: "admission",
				},
				{
					Question: "Are there any scholarships available?",
					Answer:   "Yes, we offer merit scholarships (up to 50% fee waiver), need-based scholarships (up to 30% fee waiver), and sports scholarships (up to 25% fee waiver).",
					Category: "fees",
				},
				{
					Question: "What is the hostel facility like?",
					Answer:   "We have separate hostels for boys and girls with modern amenities. Boys hostel fee: ₹35,000/year, Girls hostel fee: ₹40,000/year, Mess charges: ₹25,000/year.",
					Category: "facilities",
				},
			},
		},
	}
}
